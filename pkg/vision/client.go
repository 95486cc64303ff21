package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/toolbox/pkg/client"
	"github.com/menta2k/toolbox/pkg/types"
)

// Client serves the locator as a vision backend. It ignores model and
// prompt and answers with the same JSON document a model is asked for.
type Client struct {
	locator *Locator
}

var _ client.VisionClient = (*Client)(nil)

// NewClient returns a local client. A nil locator uses the default tuning.
func NewClient(l *Locator) *Client {
	if l == nil {
		l = NewLocator(DefaultConfig())
	}
	return &Client{locator: l}
}

// Name returns client.BackendLocal
func (c *Client) Name() string { return client.BackendLocal }

// Complete decodes image and reports its most salient window
func (c *Client) Complete(ctx context.Context, _, _ string, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	img, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	box, score := c.locator.Locate(img)

	reply := types.Detection{
		Primary: types.Subject{
			Label:      "salient region",
			Confidence: math.Min(1, score),
			Box:        box,
		},
		Description: "region with the strongest edges and color contrast",
		Tags:        []string{"saliency"},
	}
	if score == 0 {
		reply.Primary.Label = "center"
		reply.Description = "no salient content, centered region"
	}
	out, err := json.Marshal(reply)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
