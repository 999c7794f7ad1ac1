package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/docproof/client"
	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/internal/jsonrpc"
	"github.com/jmcleod/docproof/internal/util"
)

var (
	endpoint     string
	queryPath    string
	queryData    string
	queryProve   bool
	queryTimeout time.Duration
)

// hexPrefix marks JSON strings that stand for byte strings in --data.
const hexPrefix = "hex:"

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send an abci_query to a node",
	Long: `Send one abci_query request and print the response as JSON.

--data is a JSON object converted to the CBOR request map. Strings prefixed
with "hex:" become byte strings and whole numbers become unsigned integers:

  docproof query --path /dataContracts/documents \
    --data '{"contractId":"hex:c0...","type":"note","limit":10}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseQueryData(queryData)
		if err != nil {
			return err
		}
		c := client.New(endpoint, client.WithTimeout(queryTimeout))
		value, err := c.Request(cmd.Context(), queryPath, data, client.WithProve(queryProve))
		if err != nil {
			return err
		}
		out, err := renderValue(queryPath, queryProve, value)
		if err != nil {
			return err
		}
		return writeJSONTo(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&endpoint, "endpoint", "e", "http://localhost:26657", "Node URL")
	queryCmd.Flags().StringVar(&queryPath, "path", jsonrpc.PathDocuments, "Query path")
	queryCmd.Flags().StringVar(&queryData, "data", "{}", "Request data as a JSON object")
	queryCmd.Flags().BoolVar(&queryProve, "prove", false, "Request a proof")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 30*time.Second, "Request timeout")
}

func parseQueryData(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	out, err := convertJSON(raw)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// convertJSON maps decoded JSON onto the value types of a CBOR request.
func convertJSON(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			c, err := convertJSON(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			c, err := convertJSON(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case string:
		if rest, ok := strings.CutPrefix(t, hexPrefix); ok {
			return util.HexDecode(rest)
		}
		return t, nil
	case json.Number:
		if u, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return u, nil
		}
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	}
	return v, nil
}

type documentView struct {
	ID         string         `json:"id"`
	ContractID string         `json:"contract_id"`
	Type       string         `json:"type"`
	OwnerID    string         `json:"owner_id"`
	Revision   uint64         `json:"revision"`
	CreatedAt  string         `json:"created_at,omitempty"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
	Properties map[string]any `json:"properties"`
}

func viewOf(d *document.Document) documentView {
	v := documentView{
		ID:         d.ID.String(),
		ContractID: d.ContractID.String(),
		Type:       d.Type,
		OwnerID:    d.OwnerID.String(),
		Revision:   d.Revision,
		Properties: d.Properties,
	}
	if !d.CreatedAt.IsZero() {
		v.CreatedAt = d.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !d.UpdatedAt.IsZero() {
		v.UpdatedAt = d.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// renderValue decodes document listings; every other value is printed as
// hex.
func renderValue(path string, prove bool, value []byte) (any, error) {
	if path != jsonrpc.PathDocuments || prove {
		return map[string]string{"value": util.HexEncode(value)}, nil
	}
	res := struct {
		Documents     []documentView `json:"documents"`
		ProcessingFee uint64         `json:"processing_fee"`
	}{Documents: []documentView{}}
	if len(value) == 0 {
		return res, nil
	}
	var v jsonrpc.DocumentsValue
	if err := util.UnmarshalCanonical(value, &v); err != nil {
		return nil, fmt.Errorf("decoding documents response: %w", err)
	}
	for i, raw := range v.Documents {
		doc, err := document.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		res.Documents = append(res.Documents, viewOf(doc))
	}
	res.ProcessingFee = v.ProcessingFee
	return res, nil
}

func writeJSONTo(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
