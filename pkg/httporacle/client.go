// Package httporacle talks to a remote inference server that hosts the detector and classifier.
//
// The server accepts a JPEG body on two endpoints:
//
//	POST /detect?classes=0,1&threshold=0.3&nms=0.45  -> {"objects": [{"class": 0, "confidence": 0.9, "box": {"x": 1, "y": 2, "width": 3, "height": 4}}]}
//	POST /classify                                   -> {"label": "leopard", "confidence": 0.8}
//
// An empty label from /classify means "no answer".
package httporacle

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cyclopcam/trapsort/pkg/imageio"
	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/www"
)

const DefaultJPEGQuality = 90

// Client implements both nn.ObjectDetector and nn.SpeciesClassifier
type Client struct {
	BaseURL     string
	JPEGQuality int
	config      nn.ModelConfig
}

type detectResponse struct {
	Objects []nn.ObjectDetection `json:"objects"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		JPEGQuality: DefaultJPEGQuality,
		config: nn.ModelConfig{
			Architecture: "remote",
			Classes:      nn.MegaDetectorClasses,
			Device:       "HTTP",
		},
	}
}

func (c *Client) Close() {
}

func (c *Client) Config() *nn.ModelConfig {
	return &c.config
}

func (c *Client) DetectObjects(img *image.RGBA, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if params == nil {
		params = nn.NewDetectionParams()
	}
	p := params.Resolved()
	q := url.Values{}
	if len(p.Classes) != 0 {
		cls := []string{}
		for _, cl := range p.Classes {
			cls = append(cls, strconv.Itoa(cl))
		}
		q.Set("classes", strings.Join(cls, ","))
	}
	q.Set("threshold", strconv.FormatFloat(float64(p.ProbabilityThreshold), 'f', -1, 32))
	q.Set("nms", strconv.FormatFloat(float64(p.NmsIouThreshold), 'f', -1, 32))

	req, err := c.newImageRequest("/detect?"+q.Encode(), img)
	if err != nil {
		return nil, err
	}
	resp := detectResponse{}
	if err := www.FetchJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("Remote detection failed: %w", err)
	}
	objects := nn.FilterClasses(resp.Objects, p.Classes)
	if !p.Unclipped {
		b := img.Bounds()
		for i := range objects {
			objects[i].Box = objects[i].Box.Clip(b.Dx(), b.Dy())
		}
	}
	return objects, nil
}

func (c *Client) Classify(img image.Image) (*nn.Classification, error) {
	if img.Bounds().Empty() {
		return nil, nil
	}
	req, err := c.newImageRequest("/classify", imageio.ToRGBA(img))
	if err != nil {
		return nil, err
	}
	resp := nn.Classification{}
	if err := www.FetchJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("Remote classification failed: %w", err)
	}
	if resp.Label == "" {
		return nil, nil
	}
	return &resp, nil
}

func (c *Client) newImageRequest(path string, img *image.RGBA) (*http.Request, error) {
	jpg, err := imageio.EncodeJPEG(img, c.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("Failed to encode image: %w", err)
	}
	req, err := http.NewRequest("POST", c.BaseURL+path, bytes.NewReader(jpg))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	return req, nil
}
