package conf

import (
	"os"
	"runtime"
)

func ensurePath(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Target files and key material live here, keep perms restrictive
		if err = os.MkdirAll(path, 0700); err != nil {
			return err
		}
	}
	return nil
}

func GetVeloHome() string {
	veloHome := os.Getenv("VELO_HOME")
	if veloHome == "" {
		userHome, err := os.UserHomeDir()
		if err == nil {
			if runtime.GOOS == "windows" {
				veloHome = userHome + string(os.PathSeparator) + "velo" + string(os.PathSeparator)
				if err = ensurePath(veloHome); err == nil {
					return veloHome
				}
			} else {
				veloHome = userHome + string(os.PathSeparator) + ".velo" + string(os.PathSeparator)
				if err = ensurePath(veloHome); err == nil {
					return veloHome
				}
			}
		}
		veloHome, err = os.Getwd()
		if err != nil {
			veloHome = "." + string(os.PathSeparator)
		}

	}
	return veloHome
}
