package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/proof"
)

var (
	verifyRoot   string
	verifyHexIn  bool
	verifyStrict bool
)

type verifyResult struct {
	File    string        `json:"file"`
	Root    string        `json:"root"`
	Valid   bool          `json:"valid"`
	Entries []verifyEntry `json:"entries,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type verifyEntry struct {
	Path  string `json:"path"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify <proof-file>",
	Short: "Verify a proof offline",
	Long: `Check a proof returned by a node and list the entries it proves.

With --root the proof must commit to that root hash; without it only the
internal consistency of the proof is checked. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readProof(cmd.InOrStdin(), args[0], verifyHexIn)
		if err != nil {
			return err
		}
		var root []byte
		if verifyRoot != "" {
			if root, err = util.HexDecode(verifyRoot); err != nil {
				return fmt.Errorf("--root: %w", err)
			}
		}

		res := runVerify(args[0], raw, root)
		if err := writeJSONTo(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.Valid && verifyStrict {
			return fmt.Errorf("proof is invalid: %s", res.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "Expected root hash (hex)")
	verifyCmd.Flags().BoolVar(&verifyHexIn, "hex", false, "Proof file is hex encoded")
	verifyCmd.Flags().BoolVar(&verifyStrict, "strict", true, "Exit with an error when the proof is invalid")
}

func readProof(stdin io.Reader, name string, hexInput bool) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if name == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read proof: %w", err)
	}
	if hexInput {
		return util.HexDecode(string(bytes.TrimSpace(raw)))
	}
	return raw, nil
}

func runVerify(name string, raw, expectedRoot []byte) verifyResult {
	res := verifyResult{File: name}
	if root, err := proof.Root(raw); err == nil {
		res.Root = util.HexEncode(root)
	}
	entries, err := proof.Verify(raw, expectedRoot)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Valid = true
	for _, e := range entries {
		res.Entries = append(res.Entries, verifyEntry{
			Path:  e.Path.String(),
			Key:   util.HexEncode(e.Key),
			Value: util.HexEncode(e.Value),
		})
	}
	return res
}
