package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// readPasswordFile returns the first non-blank line of filename, trimmed.
func readPasswordFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("opening password file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			return pwd, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading password file: %w", err)
	}
	return "", fmt.Errorf("password file %s is empty", filename)
}
