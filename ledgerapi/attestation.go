package ledgerapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/sealedauction/core"
)

// AttestationCOSE is a raw COSE_Sign1 attestation document as produced by the NSM.
type AttestationCOSE []byte

// AttestationCOSEBase64 is AttestationCOSE in standard base64, used in JSON responses.
type AttestationCOSEBase64 string

// AttestationCOSEURLBase64 is AttestationCOSE in unpadded URL-safe base64.
type AttestationCOSEURLBase64 string

// AttestationCOSEGzip is gzip-compressed AttestationCOSE in unpadded URL-safe base64.
type AttestationCOSEGzip string

func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

func (a AttestationCOSE) EncodeURLSafe() AttestationCOSEURLBase64 {
	return AttestationCOSEURLBase64(base64.RawURLEncoding.EncodeToString(a))
}

// CompressGzip compresses the document for use in links. The gzip header
// carries no timestamp, so equal input gives equal output.
func (a AttestationCOSE) CompressGzip() (AttestationCOSEGzip, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(a); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return AttestationCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (b AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	raw, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(raw), nil
}

func (b AttestationCOSEBase64) CompressGzip() (AttestationCOSEGzip, error) {
	raw, err := b.Decode()
	if err != nil {
		return "", err
	}
	return raw.CompressGzip()
}

func (u AttestationCOSEURLBase64) String() string { return string(u) }

func (u AttestationCOSEURLBase64) Decode() (AttestationCOSE, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(u))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return AttestationCOSE(raw), nil
}

func (g AttestationCOSEGzip) String() string { return string(g) }

func (g AttestationCOSEGzip) Decompress() (AttestationCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	return AttestationCOSE(raw), nil
}

// PCRs are the Platform Configuration Registers of a Nitro enclave, hex encoded.
type PCRs struct {
	ImageFileHash   string `json:"0"`
	KernelHash      string `json:"1"`
	ApplicationHash string `json:"2"`
	IAMRoleHash     string `json:"3"`
	InstanceIDHash  string `json:"4"`
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc holds the fields common to every gateway attestation.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// KeyAttestationUserData is embedded in the attestation of the gateway's sealing key.
type KeyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"`
	PublicKey    string `json:"public_key"`
	GatewayID    string `json:"gateway_id"`
}

type KeyAttestationDoc struct {
	AttestationDoc
	UserData *KeyAttestationUserData `json:"user_data"`
}

// ResolutionAttestationUserData is embedded in the attestation of an ended
// auction. Bid hashes let each bidder prove their bid was part of the
// resolution without the document listing any amounts.
type ResolutionAttestationUserData struct {
	AuctionID           uint64         `json:"auction_id"`
	AuctionHash         string         `json:"auction_hash"`
	AuctionHashNonce    string         `json:"auction_hash_nonce"`
	Winner              core.Principal `json:"winner"`
	WinningAmountHandle core.Handle    `json:"winning_amount_handle,omitempty"`
	TotalBids           uint64         `json:"total_bids"`
	BidHashes           []string       `json:"bid_hashes"`
	BidHashNonce        string         `json:"bid_hash_nonce"`
	Timestamp           time.Time      `json:"timestamp"`
}

type ResolutionAttestationDoc struct {
	AttestationDoc
	UserData *ResolutionAttestationUserData `json:"user_data"`
}

// nitroAttestationDocument is the CBOR payload of a Nitro COSE_Sign1 document.
type nitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// ExtractCOSEPayload returns element 2 of an untagged COSE_Sign1 array:
// [protected, unprotected, payload, signature].
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	return payload, nil
}

// ParseAttestationDoc decodes the attestation document and returns it with
// the raw user data bytes.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	payload, err := ExtractCOSEPayload(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	var raw nitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return AttestationDoc{}, nil, fmt.Errorf("parse attestation payload: %w", err)
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   formatPCR(raw.PCRs[0]),
			KernelHash:      formatPCR(raw.PCRs[1]),
			ApplicationHash: formatPCR(raw.PCRs[2]),
			IAMRoleHash:     formatPCR(raw.PCRs[3]),
			InstanceIDHash:  formatPCR(raw.PCRs[4]),
			SigningCertHash: formatPCR(raw.PCRs[8]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    encodeCertificateBundle(raw.CABundle),
		PublicKey:   base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:       string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

// ParseKeyAttestation decodes a gateway key attestation.
func ParseKeyAttestation(coseBytes AttestationCOSE) (*KeyAttestationDoc, error) {
	doc, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}
	var userData KeyAttestationUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse key attestation user data: %w", err)
	}
	return &KeyAttestationDoc{AttestationDoc: doc, UserData: &userData}, nil
}

// ParseResolutionAttestation decodes the attestation of an ended auction.
func ParseResolutionAttestation(coseBytes AttestationCOSE) (*ResolutionAttestationDoc, error) {
	doc, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}
	var userData ResolutionAttestationUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse resolution user data: %w", err)
	}
	return &ResolutionAttestationDoc{AttestationDoc: doc, UserData: &userData}, nil
}

func formatPCR(pcr []byte) string {
	if len(pcr) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcr)
}

func encodeCertificateBundle(bundle [][]byte) []string {
	out := make([]string, len(bundle))
	for i, cert := range bundle {
		out[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return out
}
