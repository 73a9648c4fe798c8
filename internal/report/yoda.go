package report

import (
	"fmt"
	"io"

	"go-hep.org/x/hep/hbook"

	"github.com/banshee-data/trackeff.report/internal/hist"
)

// EncodeYODA writes every 1-D histogram of reg, followed by the projections
// of each sparse histogram on each of its axes, as YODA text.
func EncodeYODA(w io.Writer, reg *hist.Registry) error {
	for _, name := range reg.Names() {
		var hs []*hbook.H1D
		if h := reg.H1(name); h != nil {
			hs = append(hs, h.H1D)
		} else if s := reg.Sparse(name); s != nil {
			for axis := 0; axis < s.Dims(); axis++ {
				hs = append(hs, s.Project(axis, nil))
			}
		}
		for _, h := range hs {
			raw, err := h.MarshalYODA()
			if err != nil {
				return fmt.Errorf("yoda %s: %w", h.Name(), err)
			}
			if _, err := w.Write(raw); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}
