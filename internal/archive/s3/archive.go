// Package s3archive writes every resolved round to an S3-compatible bucket.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "stratsim/internal/config"
	"stratsim/internal/game"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver is a game.RoundHook. Each round lands at
// <prefix>/<game id>/round-NNN.json and a finished game also gets final.json.
type Archiver struct {
	s3     objectPutter
	bucket string
	prefix string
}

func New(ctx context.Context, cfg appconfig.ArchiveConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3archive: region is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return newArchiver(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

func newArchiver(p objectPutter, bucket, prefix string) *Archiver {
	return &Archiver{s3: p, bucket: bucket, prefix: prefix}
}

type finalStandings struct {
	GameID      string         `json:"game_id"`
	TotalRounds int            `json:"total_rounds"`
	Seed        int64          `json:"seed"`
	Rankings    []game.Ranking `json:"rankings"`
}

func (a *Archiver) OnRoundResolved(ctx context.Context, g *game.Game, result *game.RoundResult) error {
	if err := a.put(ctx, a.key(g.ID, fmt.Sprintf("round-%03d.json", result.Round)), result); err != nil {
		return err
	}
	if !g.Finished() {
		return nil
	}
	return a.put(ctx, a.key(g.ID, "final.json"), finalStandings{
		GameID:      g.ID,
		TotalRounds: g.TotalRounds,
		Seed:        g.Seed,
		Rankings:    result.Rankings,
	})
}

func (a *Archiver) key(gameID, name string) string {
	return path.Join(a.prefix, gameID, name)
}

func (a *Archiver) put(ctx context.Context, key string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("s3archive: encode %s: %w", key, err)
	}
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3archive: put %s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// normaliseEndpoint adds a scheme to bare host:port endpoints.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}

var _ game.RoundHook = (*Archiver)(nil)
