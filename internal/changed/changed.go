// Package changed decides which source files need to be rebuilt.
//
// A source is processed when its build counterpart is missing, older than
// the source, or was produced under different settings. Settings are
// compared through a fingerprint recorded per output in a Store. An output
// with no recorded fingerprint is trusted, so a build file newer than its
// source is never reprocessed.
package changed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Reason explains why a source needs processing.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonMissing  Reason = "missing"
	ReasonStale    Reason = "stale"
	ReasonSettings Reason = "settings"
)

// Store persists the settings fingerprint each output was produced with.
type Store interface {
	Fingerprint(ctx context.Context, output string) (string, bool, error)
	Record(ctx context.Context, output, fingerprint string) error
	Close() error
}

// Fingerprint returns a stable hash of settings.
func Fingerprint(settings any) (string, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryInternal, "marshal settings").Build()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Detector applies the change rules for one task.
type Detector struct {
	store       Store
	fingerprint string
}

// NewDetector creates a detector for the given settings. A nil store
// disables the settings rule.
func NewDetector(store Store, settings any) (*Detector, error) {
	fp, err := Fingerprint(settings)
	if err != nil {
		return nil, err
	}
	return &Detector{store: store, fingerprint: fp}, nil
}

// Check returns ReasonNone when dst is up to date for src.
func (d *Detector) Check(ctx context.Context, src, dst string) (Reason, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return ReasonNone, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat source").
			WithContext("path", src).Build()
	}
	dstInfo, err := os.Stat(dst)
	if os.IsNotExist(err) {
		return ReasonMissing, nil
	}
	if err != nil {
		return ReasonNone, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat output").
			WithContext("path", dst).Build()
	}
	if dstInfo.ModTime().Before(srcInfo.ModTime()) {
		return ReasonStale, nil
	}
	if d.store == nil {
		return ReasonNone, nil
	}
	recorded, ok, err := d.store.Fingerprint(ctx, dst)
	if err != nil {
		return ReasonNone, err
	}
	if ok && recorded != d.fingerprint {
		return ReasonSettings, nil
	}
	return ReasonNone, nil
}

// MarkDone records that dst was produced with the detector's settings.
func (d *Detector) MarkDone(ctx context.Context, dst string) error {
	if d.store == nil {
		return nil
	}
	return d.store.Record(ctx, dst, d.fingerprint)
}
