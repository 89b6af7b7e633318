package utils

import (
	"os"

	"github.com/joho/godotenv"
)

// ReadEnv reads an env file into a map. A missing file is not an error,
// it just yields an empty map, as the override file is optional.
func ReadEnv(file string) (map[string]string, error) {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	return godotenv.Read(file)
}
