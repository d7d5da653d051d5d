package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"math/big"
	"os"
)

// keyAlphabet avoids quotes and whitespace so the key survives shells and YAML
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~+="

func generateKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("key length must be positive")
	}

	limit := big.NewInt(int64(len(keyAlphabet)))
	key := make([]byte, length)
	for i := range key {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		key[i] = keyAlphabet[n.Int64()]
	}
	return string(key), nil
}

func main() {
	length := flag.Int("length", 32, "number of characters in the generated key")
	flag.Parse()

	key, err := generateKey(*length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated engine key (%d characters):\n%s\n", *length, key)
	fmt.Printf("\nYou can use this key in your configuration:\n")
	fmt.Printf("engine:\n  default_key: \"%s\"\n", key)
	fmt.Printf("\nOr set it as an environment variable:\n")
	fmt.Printf("export ENCRYPTOR_ENGINE_DEFAULT_KEY=\"%s\"\n", key)
}
