// Package cloudarchive uploads checkpoints and event log snapshots to a
// GCS bucket for long-run desk archival. It is entirely optional: a nil
// *Archiver is safe to call methods on and every call becomes a no-op, so
// wiring it into cmd/simcash-server costs nothing when no bucket is
// configured.
package cloudarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"simcash/internal/events"
	"simcash/internal/simcore"
	pkgerrors "simcash/pkg/errors"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

// Archiver uploads checkpoint and event log snapshots for one run to a
// fixed GCS bucket, prefixed by the run's identifier.
type Archiver struct {
	svc    *storage.Service
	bucket string
	runID  string
}

// Config bundles the settings needed to reach a GCS bucket. CredentialsJSON
// is the contents of a service account key file; when empty, the default
// application credentials from the environment are used.
type Config struct {
	Bucket          string
	RunID           string
	CredentialsJSON []byte
}

// New constructs an Archiver. With an empty Bucket it returns (nil, nil):
// archival is off by default and callers should treat a nil *Archiver as a
// valid "do nothing" value.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, cfg.CredentialsJSON, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "cloudarchive: parsing credentials")
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "cloudarchive: constructing storage client")
	}

	return &Archiver{svc: svc, bucket: cfg.Bucket, runID: cfg.RunID}, nil
}

// UploadCheckpoint writes a checkpoint snapshot as a timestamped object
// under the run's checkpoints/ prefix.
func (a *Archiver) UploadCheckpoint(ctx context.Context, cp *simcore.Checkpoint) error {
	if a == nil {
		return nil
	}
	body, err := json.Marshal(cp)
	if err != nil {
		return pkgerrors.Wrap(err, "cloudarchive: marshaling checkpoint")
	}
	name := fmt.Sprintf("%s/checkpoints/tick-%012d.json", a.runID, cp.Tick)
	return a.putObject(ctx, name, body)
}

// UploadEvents writes a contiguous batch of events as a single object
// under the run's events/ prefix, named by the tick range it covers.
func (a *Archiver) UploadEvents(ctx context.Context, batch []events.Event) error {
	if a == nil || len(batch) == 0 {
		return nil
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return pkgerrors.Wrap(err, "cloudarchive: marshaling event batch")
	}
	first, last := batch[0].Tick, batch[len(batch)-1].Tick
	name := fmt.Sprintf("%s/events/tick-%012d-%012d-%d.json", a.runID, first, last, time.Now().UnixNano())
	return a.putObject(ctx, name, body)
}

func (a *Archiver) putObject(ctx context.Context, name string, body []byte) error {
	obj := &storage.Object{Name: name, Bucket: a.bucket, ContentType: "application/json"}
	_, err := a.svc.Objects.Insert(a.bucket, obj).Media(bytes.NewReader(body)).Context(ctx).Do()
	if err != nil {
		return pkgerrors.Wrap(err, "cloudarchive: uploading object")
	}
	return nil
}
