package llm

import (
	"context"
	"fmt"
	"strings"
)

// Brief is what the copywriter knows about a vendor.
type Brief struct {
	Name        string
	Website     string
	Title       string
	Description string
	// Text is visible page text, already truncated by the caller.
	Text string
}

// OutreachEmail is a first-contact email.
type OutreachEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SiteCopy is the content of a generated landing page.
type SiteCopy struct {
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

// CampaignIdea is a suggested loyalty campaign.
type CampaignIdea struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

const systemPrompt = `You write short, friendly, specific marketing copy for small local businesses.
Never invent facts about the business. Do not use placeholders.`

// Copywriter produces outreach copy. Without a client it falls back to fixed templates.
type Copywriter struct {
	client Client
}

// NewCopywriter returns a Copywriter. client may be nil.
func NewCopywriter(client Client) *Copywriter {
	return &Copywriter{client: client}
}

// OutreachEmail drafts a first-contact email for the vendor.
func (w *Copywriter) OutreachEmail(ctx context.Context, b Brief) (OutreachEmail, error) {
	if w.client == nil {
		return OutreachEmail{
			Subject: fmt.Sprintf("A loyalty program for %s", b.Name),
			Body: fmt.Sprintf("Hi %s team,\n\nWe help local businesses reward repeat customers. "+
				"We put together a preview page for you and would love to hear what you think.\n", b.Name),
		}, nil
	}
	out, err := generateJSON[OutreachEmail](ctx, w.client, Prompt{
		Tier:   TierFast,
		System: systemPrompt,
		Text: "Write a first-contact email offering a customer loyalty program.\n" +
			`Return JSON: {"subject": string, "body": string}. Body under 120 words.` + "\n\n" + b.render(),
		JSON: true,
	})
	if err != nil {
		return OutreachEmail{}, err
	}
	if out.Subject == "" || out.Body == "" {
		return OutreachEmail{}, fmt.Errorf("model returned an incomplete email")
	}
	return out, nil
}

// SiteCopy drafts landing page copy for the vendor.
func (w *Copywriter) SiteCopy(ctx context.Context, b Brief) (SiteCopy, error) {
	if w.client == nil {
		return SiteCopy{
			Headline: fmt.Sprintf("Rewards at %s", b.Name),
			Body:     fmt.Sprintf("Earn points every time you visit %s and redeem them for treats.", b.Name),
		}, nil
	}
	out, err := generateJSON[SiteCopy](ctx, w.client, Prompt{
		Tier:   TierQuality,
		System: systemPrompt,
		Text: "Write landing page copy for this business's new loyalty program.\n" +
			`Return JSON: {"headline": string, "body": string}. Headline under 10 words.` + "\n\n" + b.render(),
		JSON: true,
	})
	if err != nil {
		return SiteCopy{}, err
	}
	if out.Headline == "" || out.Body == "" {
		return SiteCopy{}, fmt.Errorf("model returned incomplete site copy")
	}
	return out, nil
}

// CampaignIdea suggests a campaign for the vendor.
func (w *Copywriter) CampaignIdea(ctx context.Context, b Brief) (CampaignIdea, error) {
	if w.client == nil {
		return CampaignIdea{
			Name:        fmt.Sprintf("%s regulars", b.Name),
			Description: "Buy nine, get the tenth free.",
		}, nil
	}
	out, err := generateJSON[CampaignIdea](ctx, w.client, Prompt{
		Tier:   TierFast,
		System: systemPrompt,
		Text: "Suggest one simple loyalty campaign this business could run.\n" +
			`Return JSON: {"name": string, "description": string}.` + "\n\n" + b.render(),
		JSON: true,
	})
	if err != nil {
		return CampaignIdea{}, err
	}
	if out.Name == "" {
		return CampaignIdea{}, fmt.Errorf("model returned a campaign without a name")
	}
	return out, nil
}

func generateJSON[T any](ctx context.Context, c Client, p Prompt) (T, error) {
	text, err := c.Generate(ctx, p)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeJSON[T](text)
}

func (b Brief) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business: %s\n", b.Name)
	if b.Website != "" {
		fmt.Fprintf(&sb, "Website: %s\n", b.Website)
	}
	if b.Title != "" {
		fmt.Fprintf(&sb, "Page title: %s\n", b.Title)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Page description: %s\n", b.Description)
	}
	if b.Text != "" {
		fmt.Fprintf(&sb, "Page text:\n%s\n", b.Text)
	}
	return sb.String()
}
