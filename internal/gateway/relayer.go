package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"github.com/gridwatt/energytrade/pkg/logger"
)

// RelayerClient submits settlements to a relayer over HTTP. The relayer
// owns the on-chain transaction and replies only once it is mined (or
// rejected), so one request spans the whole confirmation wait.
type RelayerClient struct {
	http *resty.Client
}

type submitResponse struct {
	Status string `json:"status"` // "confirmed" or "rejected"
	TxHash string `json:"tx_hash,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func NewRelayerClient(baseURL string, timeout time.Duration) *RelayerClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &RelayerClient{http: c}
}

func (c *RelayerClient) SubmitSettlement(ctx context.Context, s Settlement) (common.Hash, error) {
	var out submitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(s).
		SetResult(&out).
		Post("/settlements")
	if err != nil {
		// Includes context deadline: the caller treats a timeout the
		// same as a rejection and compensates.
		return common.Hash{}, &UnavailableError{Err: err}
	}
	if resp.IsError() {
		return common.Hash{}, &UnavailableError{Err: fmt.Errorf("http %d", resp.StatusCode())}
	}
	switch out.Status {
	case "confirmed":
		if out.TxHash == "" {
			return common.Hash{}, fmt.Errorf("gateway confirmed without tx hash")
		}
		logger.WithField("tx_hash", out.TxHash).Debug("gateway confirmed settlement")
		return common.HexToHash(out.TxHash), nil
	case "rejected":
		return common.Hash{}, &RejectedError{Reason: out.Reason}
	default:
		return common.Hash{}, fmt.Errorf("gateway returned unknown status %q", out.Status)
	}
}
