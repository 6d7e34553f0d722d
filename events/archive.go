package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cloudx-io/sealedauction/core"
)

// uploader is the part of *manager.Uploader the archiver uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// AuctionResult is the archived record of an auction reaching a terminal state.
type AuctionResult struct {
	AuctionID           uint64         `json:"auction_id"`
	Status              string         `json:"status"`
	Winner              core.Principal `json:"winner,omitempty"`
	WinningAmountHandle core.Handle    `json:"winning_amount_handle,omitempty"`
	Seq                 uint64         `json:"seq"`
	FinalizedAt         string         `json:"finalized_at"`
}

// S3Archiver writes the result of every ended or cancelled auction to paths like:
//
//	s3://<bucket>/<prefix>/auctions/YYYY/MM/DD/<auctionID>.json
//
// Other events are ignored.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
}

// NewS3Archiver creates an S3Archiver using the default AWS credential chain.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ObjectKey returns where the result of an auction finalized at ts is stored.
func (s *S3Archiver) ObjectKey(auctionID uint64, ts time.Time) string {
	year, month, day := ts.UTC().Date()
	return path.Join(s.prefix, "auctions",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		strconv.FormatUint(auctionID, 10)+".json",
	)
}

func (s *S3Archiver) Publish(ctx context.Context, ev core.Event) error {
	var status core.Status
	switch ev.Type {
	case core.EventAuctionEnded:
		status = core.StatusEnded
	case core.EventAuctionCancelled:
		status = core.StatusCancelled
	default:
		return nil
	}

	ts := time.Unix(ev.Timestamp, 0).UTC()
	body, err := json.Marshal(AuctionResult{
		AuctionID:           ev.AuctionID,
		Status:              status.String(),
		Winner:              ev.Winner,
		WinningAmountHandle: ev.WinningAmountHandle,
		Seq:                 ev.Seq,
		FinalizedAt:         ts.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal auction result: %w", err)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.ObjectKey(ev.AuctionID, ts)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		// Server-side encryption with S3-managed keys (SSE-S3).
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
