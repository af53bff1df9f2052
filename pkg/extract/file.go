package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileChannel reads exports from the local filesystem. Path may contain the
// placeholders {uf} and {year}; without {year} a single file holds every
// requested year.
type FileChannel struct {
	Path string
}

func (c *FileChannel) Name() string { return "file" }

// Extract reads the export file(s) for the request.
func (c *FileChannel) Extract(ctx context.Context, req Request) (*Frame, error) {
	if c.Path == "" {
		return nil, errors.New("file channel: Path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !strings.Contains(c.Path, "{year}") {
		return c.read(c.resolve(req.UF, 0))
	}

	out := &Frame{}
	for _, year := range req.Years {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := c.read(c.resolve(req.UF, year))
		if err != nil {
			return nil, err
		}
		out.Append(f)
	}
	return out, nil
}

func (c *FileChannel) resolve(uf string, year int) string {
	return strings.NewReplacer(
		"{uf}", strings.ToUpper(uf),
		"{year}", strconv.Itoa(year),
	).Replace(c.Path)
}

func (c *FileChannel) read(path string) (*Frame, error) {
	f, err := ReadFrameFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file channel: %s not found", path)
		}
		return nil, fmt.Errorf("file channel: %w", err)
	}
	return f, nil
}
