package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/netx"
)

// deleteWithSecret and getSecret are test seams.
var deleteWithSecret = netx.DeleteWithSecret
var getSecret = GetSecret

const (
	sweepPath      = "/api/files/cleanup/expired"
	pruneTokenPath = "/api/auth/tokens/expired"
)

type sweepReport struct {
	Cutoff     time.Time `json:"cutoff"`
	Candidates int       `json:"candidates"`
	Purged     int       `json:"purged"`
	Skipped    int       `json:"skipped"`
	Incomplete int       `json:"incomplete"`
}

// Sweep triggers the privileged retention sweep on the admin endpoint.
// "sweep tokens" prunes expired refresh tokens instead.
func (a *App) Sweep(ctx context.Context, args []string) error {
	path := sweepPath
	if len(args) > 0 && args[0] == "tokens" {
		path = pruneTokenPath
	}

	secret, err := getSecret(a.out, "Enter cron secret: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	url := strings.TrimRight(a.config.AdminURL, "/") + path
	body, err := deleteWithSecret(ctx, url, common.CronSecretHeaderName, string(secret))
	if err != nil {
		return err
	}

	if path == pruneTokenPath {
		var r struct {
			Removed int64 `json:"removed"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Fprintf(a.out, "Removed %d expired refresh tokens\n", r.Removed)
		return nil
	}

	var r sweepReport
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(a.out, "Sweep up to %s: %d candidates, %d purged, %d skipped, %d incomplete\n",
		r.Cutoff.Local().Format(time.DateTime), r.Candidates, r.Purged, r.Skipped, r.Incomplete)
	return nil
}
