// Command mixtureplot renders the cost surface of a max-mixture
// detection factor along one axis: the per-hypothesis cost curves, the
// factor's min-over-hypotheses envelope, and the selected hypothesis
// index. The switch boundaries of the piecewise-smooth surface show up
// as kinks in the envelope and steps in the index plot.
//
// Hypotheses are given as semicolon-separated triples, e.g.
//
//	mixtureplot -means "0,0,0;1,0,0" -variances "0.01;0.04" -weights "1;0.8"
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trackgraph/internal/factor"
	"github.com/banshee-data/trackgraph/internal/geom"
	"github.com/banshee-data/trackgraph/internal/graph"
)

func main() {
	var (
		outputDir = flag.String("out", "plots", "output directory for PNG files")
		axis      = flag.Int("axis", 0, "axis to sweep (0=x, 1=y, 2=z)")
		minV      = flag.Float64("min", -1.0, "sweep range minimum (meters)")
		maxV      = flag.Float64("max", 2.0, "sweep range maximum (meters)")
		steps     = flag.Int("steps", 600, "number of sweep samples")
		means     = flag.String("means", "0,0,0;1,0,0", "hypothesis means, semicolon-separated x,y,z triples")
		variances = flag.String("variances", "0.01;0.01", "per-hypothesis isotropic variances")
		weights   = flag.String("weights", "1;1", "per-hypothesis confidence weights")
	)
	flag.Parse()

	if *axis < 0 || *axis > 2 {
		log.Fatalf("axis must be 0, 1, or 2; got %d", *axis)
	}
	if *steps < 2 {
		log.Fatalf("steps must be >= 2; got %d", *steps)
	}

	f, err := buildFactor(*means, *variances, *weights)
	if err != nil {
		log.Fatalf("build factor: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	if err := renderSweep(f, *outputDir, *axis, *minV, *maxV, *steps); err != nil {
		log.Fatalf("render: %v", err)
	}
	log.Printf("wrote cost and selection plots to %s", *outputDir)
}

// buildFactor parses the hypothesis flags into a detection factor.
func buildFactor(meansSpec, varSpec, weightSpec string) (*factor.DetectionFactor, error) {
	meanParts := strings.Split(meansSpec, ";")
	varParts := strings.Split(varSpec, ";")
	weightParts := strings.Split(weightSpec, ";")
	if len(meanParts) != len(varParts) || len(meanParts) != len(weightParts) {
		return nil, fmt.Errorf("means (%d), variances (%d), and weights (%d) must have equal counts",
			len(meanParts), len(varParts), len(weightParts))
	}

	hyps := make([]*factor.Hypothesis, 0, len(meanParts))
	for i := range meanParts {
		mu, err := parseVec3(meanParts[i])
		if err != nil {
			return nil, fmt.Errorf("mean %d: %w", i, err)
		}
		variance, err := strconv.ParseFloat(strings.TrimSpace(varParts[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("variance %d: %w", i, err)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weightParts[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %d: %w", i, err)
		}
		region := factor.Region{Pose: geom.NewPose3(geom.IdentityRot3(), mu), Confidence: w}
		h, err := factor.NewHypothesisIsotropic(region, variance, w)
		if err != nil {
			return nil, fmt.Errorf("hypothesis %d: %w", i, err)
		}
		hyps = append(hyps, h)
	}

	return factor.NewDetectionFactor(hyps,
		graph.Symbol('o', 0), graph.Symbol('x', 0), factor.TightlyCoupled)
}

func parseVec3(s string) (geom.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return geom.Vec3{}, fmt.Errorf("want 3 components, got %d", len(parts))
	}
	var v geom.Vec3
	for i, p := range parts {
		c, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Vec3{}, err
		}
		v[i] = c
	}
	return v, nil
}

// renderSweep evaluates the factor along the axis and writes two plots:
// cost curves and the selected hypothesis index.
func renderSweep(f *factor.DetectionFactor, outputDir string, axis int, minV, maxV float64, steps int) error {
	axisName := [3]string{"x", "y", "z"}[axis]

	pCost := plot.New()
	pCost.Title.Text = fmt.Sprintf("Max-Mixture Cost Along %s", axisName)
	pCost.X.Label.Text = fmt.Sprintf("%s (m)", axisName)
	pCost.Y.Label.Text = "Cost"

	pSel := plot.New()
	pSel.Title.Text = fmt.Sprintf("Selected Hypothesis Along %s", axisName)
	pSel.X.Label.Text = fmt.Sprintf("%s (m)", axisName)
	pSel.Y.Label.Text = "Hypothesis Index"

	perHyp := make([]plotter.XYs, f.NumHypotheses())
	envelope := make(plotter.XYs, 0, steps)
	selected := make(plotter.XYs, 0, steps)

	stepSize := (maxV - minV) / float64(steps-1)
	for s := 0; s < steps; s++ {
		c := minV + float64(s)*stepSize
		var pos geom.Vec3
		pos[axis] = c
		rel := geom.NewPose3(geom.IdentityRot3(), pos)

		for i := 0; i < f.NumHypotheses(); i++ {
			perHyp[i] = append(perHyp[i], plotter.XY{X: c, Y: f.Hypothesis(i).Error(pos, f.Gamma())})
		}
		idx, e := f.SelectHypothesis(rel)
		envelope = append(envelope, plotter.XY{X: c, Y: e})
		selected = append(selected, plotter.XY{X: c, Y: float64(idx)})
	}

	for i, pts := range perHyp {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("hypothesis %d line: %w", i, err)
		}
		line.LineStyle.Width = vg.Points(0.75)
		line.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		pCost.Add(line)
		pCost.Legend.Add(fmt.Sprintf("hyp %d", i), line)
	}
	envLine, err := plotter.NewLine(envelope)
	if err != nil {
		return fmt.Errorf("envelope line: %w", err)
	}
	envLine.LineStyle.Width = vg.Points(1.5)
	pCost.Add(envLine)
	pCost.Legend.Add("min envelope", envLine)

	selLine, err := plotter.NewLine(selected)
	if err != nil {
		return fmt.Errorf("selection line: %w", err)
	}
	pSel.Add(selLine)

	costPath := filepath.Join(outputDir, fmt.Sprintf("cost_%s.png", axisName))
	if err := pCost.Save(8*vg.Inch, 5*vg.Inch, costPath); err != nil {
		return fmt.Errorf("save %s: %w", costPath, err)
	}
	selPath := filepath.Join(outputDir, fmt.Sprintf("selection_%s.png", axisName))
	if err := pSel.Save(8*vg.Inch, 3*vg.Inch, selPath); err != nil {
		return fmt.Errorf("save %s: %w", selPath, err)
	}
	return nil
}
