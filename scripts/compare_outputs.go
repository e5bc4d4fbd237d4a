//go:build ignore

// Compares the unspent output sets of two node data directories.
//
// Usage: go run scripts/compare_outputs.go <db1_path> <db2_path>
package main

import (
	"bytes"
	"fmt"
	"os"

	"lattice/internal/storage"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <db1_path> <db2_path>\n", os.Args[0])
		os.Exit(1)
	}

	db1Path := os.Args[1]
	db2Path := os.Args[2]

	db1, err := storage.Open(db1Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db1: %v\n", err)
		os.Exit(1)
	}
	defer db1.Close()

	db2, err := storage.Open(db2Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db2: %v\n", err)
		os.Exit(1)
	}
	defer db2.Close()

	outputs1 := collectOutputs(db1)
	outputs2 := collectOutputs(db2)

	fmt.Printf("DB1 (%s): %d outputs\n", db1Path, len(outputs1))
	fmt.Printf("DB2 (%s): %d outputs\n", db2Path, len(outputs2))

	missing1, missing2, different := compare(outputs1, outputs2)

	if len(missing1) == 0 && len(missing2) == 0 && len(different) == 0 {
		fmt.Println("\n✓ Output sets are identical!")
		os.Exit(0)
	}

	fmt.Println("\n✗ Output sets differ:")

	if len(missing1) > 0 {
		fmt.Printf("  - Outputs in DB1 but not in DB2: %d\n", len(missing1))
		for _, op := range missing1 {
			fmt.Printf("      %s\n", formatOutpoint(op))
		}
	}

	if len(missing2) > 0 {
		fmt.Printf("  - Outputs in DB2 but not in DB1: %d\n", len(missing2))
		for _, op := range missing2 {
			fmt.Printf("      %s\n", formatOutpoint(op))
		}
	}

	if len(different) > 0 {
		fmt.Printf("  - Outputs with different content: %d\n", len(different))
		for _, op := range different {
			fmt.Printf("      %s\n", formatOutpoint(op))
		}
	}

	os.Exit(1)
}

// collectOutputs reads every unspent output entry keyed under the "u:"
// prefix.
func collectOutputs(db *storage.Store) map[string][]byte {
	outputs := make(map[string][]byte)

	db.IteratePrefix([]byte("u:"), func(key, value []byte) error {
		valueCopy := make([]byte, len(value))
		copy(valueCopy, value)
		outputs[string(key)] = valueCopy

		return nil
	})

	return outputs
}

// formatOutpoint renders a stored output key as txid_prefix:index.
func formatOutpoint(key string) string {
	// Key layout: "u:" + 32-byte txid + 4-byte little-endian index.
	raw := []byte(key)
	if len(raw) != 2+36 {
		return fmt.Sprintf("%x", raw)
	}

	txid := raw[2:34]
	index := uint32(raw[34]) | uint32(raw[35])<<8 | uint32(raw[36])<<16 | uint32(raw[37])<<24

	return fmt.Sprintf("%x:%d", txid[:8], index)
}

func compare(out1, out2 map[string][]byte) (missing1, missing2, different []string) {
	for op := range out1 {
		if _, ok := out2[op]; !ok {
			missing1 = append(missing1, op)
		}
	}

	for op := range out2 {
		if _, ok := out1[op]; !ok {
			missing2 = append(missing2, op)
		}
	}

	for op, data1 := range out1 {
		if data2, ok := out2[op]; ok && !bytes.Equal(data1, data2) {
			different = append(different, op)
		}
	}

	return
}
