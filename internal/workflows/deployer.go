package workflows

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonathan/outreach-agent/internal/types"
)

// Deployer provisions the on-chain contract behind a campaign and returns its address.
type Deployer interface {
	Deploy(ctx context.Context, c types.Campaign) (string, error)
}

// WebhookDeployer asks a deployment service to create the contract.
type WebhookDeployer struct {
	URL    string
	Client *http.Client
}

// NewWebhookDeployer returns a WebhookDeployer with the default timeout.
func NewWebhookDeployer(url string) *WebhookDeployer {
	return &WebhookDeployer{URL: url, Client: &http.Client{Timeout: defaultWebhookTimeout}}
}

type deployRequest struct {
	CampaignID string  `json:"campaignId"`
	Name       string  `json:"name"`
	VendorID   *string `json:"vendorId,omitempty"`
}

type deployResponse struct {
	ContractAddress string `json:"contractAddress"`
}

// Deploy requests a contract for c.
func (d *WebhookDeployer) Deploy(ctx context.Context, c types.Campaign) (string, error) {
	var out deployResponse
	err := postJSON(ctx, d.Client, d.URL, deployRequest{
		CampaignID: c.ID.String(),
		Name:       c.Name,
		VendorID:   c.VendorID,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ContractAddress == "" {
		return "", errors.New("deployment service returned no contract address")
	}
	return out.ContractAddress, nil
}

// NoopDeployer activates campaigns without a contract.
type NoopDeployer struct{}

// Deploy returns an empty address.
func (NoopDeployer) Deploy(context.Context, types.Campaign) (string, error) {
	return "", nil
}
