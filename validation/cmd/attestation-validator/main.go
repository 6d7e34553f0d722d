package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/ledgerapi"
	"github.com/cloudx-io/sealedauction/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

type namedCheck struct {
	name string
	ok   bool
}

// report is the common shape of both result kinds for output.
type report struct {
	title   string
	valid   bool
	checks  []namedCheck
	details []string
}

func main() {
	var (
		kind         = flag.String("kind", "", "Attestation kind: key or resolution (required)")
		responsePath = flag.String("response", "", "Path to key_response or end_auction_response JSON (required)")
		pcrsPath     = flag.String("pcrs", "", "Path to known PCR sets JSON (default: $"+validation.PCRConfigEnv+")")
		auctionInput = flag.String("auction", "", "Auction JSON from get_auction (file path or inline JSON, resolution only)")
		bidInput     = flag.String("bid", "", "Your bid JSON {auction_id, index, bidder, amount} (file path or inline JSON, resolution only)")
		isWinner     = flag.Bool("winner", false, "Expect the bid's bidder to have won (resolution only)")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)
	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}
	if *responsePath == "" || (*kind != "key" && *kind != "resolution") {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --kind (key|resolution) and --response are required\n")
		os.Exit(1)
	}

	knownPCRs, err := validation.LoadPCRsFromFile(*pcrsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading PCR sets: %v\n", err)
		os.Exit(2)
	}
	validator, err := validation.NewValidator(knownPCRs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating validator: %v\n", err)
		os.Exit(2)
	}

	var r report
	switch *kind {
	case "key":
		r, err = validateKey(validator, *responsePath)
	case "resolution":
		r, err = validateResolution(validator, *responsePath, *auctionInput, *bidInput, *isWinner)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(r); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(r)
	}

	if !r.valid {
		os.Exit(1)
	}
	os.Exit(0)
}

func validateKey(v *validation.Validator, responsePath string) (report, error) {
	var resp ledgerapi.KeyResponse
	if err := readJSONInput(responsePath, &resp); err != nil {
		return report{}, fmt.Errorf("read key response: %w", err)
	}
	result, err := v.ValidateKeyAttestation(resp)
	if err != nil {
		return report{}, err
	}
	return report{
		title: "Gateway Key Attestation Validator",
		valid: result.IsValid(),
		checks: []namedCheck{
			{"pcrs_valid", result.PCRsValid},
			{"certificate_valid", result.CertificateValid},
			{"signature_valid", result.SignatureValid},
			{"public_key_match", result.PublicKeyMatch},
			{"gateway_id_match", result.GatewayIDMatch},
		},
		details: result.ValidationDetails,
	}, nil
}

func validateResolution(v *validation.Validator, responsePath, auctionInput, bidInput string, isWinner bool) (report, error) {
	if auctionInput == "" || bidInput == "" {
		return report{}, fmt.Errorf("--auction and --bid are required for resolution attestations")
	}

	var resp ledgerapi.EndAuctionResponse
	if err := readJSONInput(responsePath, &resp); err != nil {
		return report{}, fmt.Errorf("read end auction response: %w", err)
	}
	if resp.AttestationCOSEBase64 == "" {
		return report{}, fmt.Errorf("missing attestation_cose_base64 field in end auction response")
	}

	// Accept either the bare summary or the full auction_response.
	var auctionResp ledgerapi.AuctionResponse
	if err := readJSONInput(auctionInput, &auctionResp); err != nil {
		return report{}, fmt.Errorf("read auction: %w", err)
	}
	auction := auctionResp.Auction
	if auctionResp.Type == "" {
		if err := readJSONInput(auctionInput, &auction); err != nil {
			return report{}, fmt.Errorf("read auction: %w", err)
		}
	}

	var bid core.Bid
	if err := readJSONInput(bidInput, &bid); err != nil {
		return report{}, fmt.Errorf("read bid: %w", err)
	}

	result, err := v.ValidateResolutionAttestation(validation.ResolutionValidationInput{
		Attestation: resp.AttestationCOSEBase64,
		Auction:     auction,
		Bid:         bid,
		IsWinner:    isWinner,
	})
	if err != nil {
		return report{}, err
	}
	return report{
		title: "Auction Resolution Attestation Validator",
		valid: result.IsValid(),
		checks: []namedCheck{
			{"pcrs_valid", result.PCRsValid},
			{"certificate_valid", result.CertificateValid},
			{"signature_valid", result.SignatureValid},
			{"auction_hash_valid", result.AuctionHashValid},
			{"bid_included", result.BidIncluded},
			{"winner_valid", result.WinnerValid},
		},
		details: result.ValidationDetails,
	}, nil
}

// readJSONInput decodes input as inline JSON when it looks like an object,
// otherwise as the contents of the file it names.
func readJSONInput(input string, v any) error {
	data := []byte(input)
	if !strings.HasPrefix(strings.TrimSpace(input), "{") {
		var err error
		data, err = os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func showUsage() {
	logger.Info("Gateway Attestation Validator")
	logger.Info("")
	logger.Info("Validates attestations produced by the sealed auction gateway enclave.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  attestation-validator --kind key --response <path> [options]")
	logger.Info("  attestation-validator --kind resolution --response <path> --auction <json> --bid <json> [--winner] [options]")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --pcrs <path>                     Known PCR sets (default: $" + validation.PCRConfigEnv + ")")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func outputText(r report) {
	logger.Info(r.title)
	logger.Info("=============================")
	logger.Info("")
	logger.Info("Details:")
	for _, d := range r.details {
		logger.Info("  " + d)
	}
	logger.Info("")
	logger.Info("Summary:")
	for _, c := range r.checks {
		logger.Info(fmt.Sprintf("  %-20s %v", c.name+":", c.ok))
	}
	logger.Info("")
	logger.Info("=============================")
	if r.valid {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(r report) error {
	output := map[string]any{
		"valid":   r.valid,
		"details": r.details,
	}
	for _, c := range r.checks {
		output[c.name] = c.ok
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
