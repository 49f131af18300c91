package pixelart

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

const (
	defaultTargetSize = 64
	minTargetSize     = 8
	shrinkFactor      = 0.7
	// Pixels with alpha below this produce no block.
	alphaThreshold = 128
)

// FetchError reports a failed image download or decode.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to fetch image %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("failed to fetch image %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is a compiled image: a bounded command list plus a human-readable
// summary of what will be placed.
type Result struct {
	Description string   `json:"description"`
	Commands    []string `json:"commands"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
}

// Compiler turns an image URL into setblock/fill commands on the quantized
// concrete palette. The fetch has its own timeout, aborted through the
// request context when it expires.
type Compiler struct {
	httpClient   *http.Client
	fetchTimeout time.Duration
	logger       *logrus.Logger
}

// NewCompiler builds a compiler with the given image fetch timeout.
func NewCompiler(fetchTimeout time.Duration, logger *logrus.Logger) *Compiler {
	return &Compiler{
		httpClient:   &http.Client{},
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Compile fetches the image and produces at most a budget-bounded command
// list. If the first attempt overflows maxCommands the target edge shrinks
// by a fixed factor and the whole resize/quantize/compile pipeline reruns,
// down to the minimum edge length; the last attempt's output is returned
// once either bound is hit. targetSize <= 0 selects the default edge of 64.
func (c *Compiler) Compile(ctx context.Context, url string, originX, originY, originZ, maxCommands, targetSize int) (*Result, error) {
	img, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if targetSize <= 0 {
		targetSize = defaultTargetSize
	}
	if targetSize < minTargetSize {
		targetSize = minTargetSize
	}

	var result *Result
	for {
		resized := imaging.Fit(img, targetSize, targetSize, imaging.Lanczos)
		grid := quantize(resized)
		commands := compileRows(grid, originX, originY, originZ)

		width, height := 0, len(grid)
		if height > 0 {
			width = len(grid[0])
		}
		result = &Result{
			Description: fmt.Sprintf("Rendering %dx%d pixel art (%d commands)", width, height, len(commands)),
			Commands:    commands,
			Width:       width,
			Height:      height,
		}

		if len(commands) <= maxCommands || targetSize <= minTargetSize {
			break
		}

		next := int(float64(targetSize) * shrinkFactor)
		if next < minTargetSize {
			next = minTargetSize
		}
		c.logger.WithFields(logrus.Fields{
			"commands": len(commands),
			"budget":   maxCommands,
			"nextSize": next,
		}).Debug("Pixel art over command budget, shrinking")
		targetSize = next
	}

	return result, nil
}

func (c *Compiler) fetch(ctx context.Context, url string) (image.Image, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return img, nil
}

// quantize maps each pixel to a palette block name, or "" for transparent.
// Row 0 is the top of the image.
func quantize(img *image.NRGBA) [][]string {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	grid := make([][]string, height)
	for y := 0; y < height; y++ {
		row := make([]string, width)
		for x := 0; x < width; x++ {
			px := img.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			if int(px.A) < alphaThreshold {
				continue
			}
			row[x] = closestBlock(int(px.R), int(px.G), int(px.B))
		}
		grid[y] = row
	}
	return grid
}

// compileRows run-length encodes each row into fill commands, single blocks
// into setblock. Row 0 maps to the highest Y so the image is upright in the
// world; transparent cells produce nothing.
func compileRows(grid [][]string, originX, originY, originZ int) []string {
	var commands []string
	height := len(grid)

	for row := 0; row < height; row++ {
		cols := grid[row]
		blockY := originY + (height - 1 - row)

		for col := 0; col < len(cols); {
			block := cols[col]
			if block == "" {
				col++
				continue
			}

			runEnd := col + 1
			for runEnd < len(cols) && cols[runEnd] == block {
				runEnd++
			}

			x1 := originX + col
			x2 := originX + runEnd - 1
			if runEnd-col == 1 {
				commands = append(commands, fmt.Sprintf("setblock %d %d %d minecraft:%s", x1, blockY, originZ, block))
			} else {
				commands = append(commands, fmt.Sprintf("fill %d %d %d %d %d %d minecraft:%s", x1, blockY, originZ, x2, blockY, originZ, block))
			}
			col = runEnd
		}
	}

	return commands
}
