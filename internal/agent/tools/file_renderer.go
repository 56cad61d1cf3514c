package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/finsight-core-v1/server/internal/agent/model"
	errx "github.com/finsight-core-v1/server/internal/core/error"
)

// FileRenderer is a reference Renderer writing SVG charts and md/txt/pdf
// report files to the local filesystem. Chart styling and PDF layout are
// deliberately minimal; a production deployment swaps this for a real
// rendering service.
type FileRenderer struct{}

func NewFileRenderer() *FileRenderer { return &FileRenderer{} }

func (r *FileRenderer) DrawPriceChart(ctx context.Context, analysis *model.AnalysisResult, outputPath string) (string, error) {
	if analysis == nil {
		return "", fmt.Errorf("nil analysis")
	}
	title := analysis.CompanyName
	if title == "" {
		title = analysis.Ticker
	}
	svg := renderRangeSVG(title+" price", analysis.CurrentPrice,
		metricFloat(analysis.Metrics, "52week_low"),
		metricFloat(analysis.Metrics, "52week_high"))
	return outputPath, writeFile(outputPath, []byte(svg))
}

func (r *FileRenderer) DrawValuationChart(ctx context.Context, analysis *model.AnalysisResult, outputPath string) (string, error) {
	if analysis == nil {
		return "", fmt.Errorf("nil analysis")
	}
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="480" height="320">`)
	b.WriteString(`<text x="10" y="20" font-size="14">Valuation</text>`)
	y := 50
	emit := func(label string, v float64) {
		w := int(v * 4)
		if w > 400 {
			w = 400
		}
		fmt.Fprintf(&b, `<text x="10" y="%d" font-size="12">%s</text><rect x="120" y="%d" width="%d" height="12" fill="#4a90d9"/>`, y+10, label, y, w)
		y += 30
	}
	if analysis.AnalysisType == model.AnalysisComparison {
		for _, s := range analysis.Stocks {
			emit(s.Ticker, metricFloat(s.Metrics, "pe_ratio"))
		}
	} else {
		emit(analysis.Ticker, metricFloat(analysis.Metrics, "pe_ratio"))
	}
	b.WriteString(`</svg>`)
	return outputPath, writeFile(outputPath, []byte(b.String()))
}

func (r *FileRenderer) Export(ctx context.Context, text, format, outputPath string, chartPaths []string) (string, error) {
	switch format {
	case "md":
		var b strings.Builder
		b.WriteString(text)
		for _, c := range chartPaths {
			fmt.Fprintf(&b, "\n\n![chart](%s)\n", c)
		}
		return outputPath, writeFile(outputPath, []byte(b.String()))
	case "txt":
		return outputPath, writeFile(outputPath, []byte(text))
	case "pdf":
		return outputPath, writeFile(outputPath, minimalPDF(text))
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errx.WrapTool(err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errx.WrapTool(err)
	}
	return nil
}

func metricFloat(metrics map[string]any, key string) float64 {
	if v, ok := metrics[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func renderRangeSVG(title string, current, low, high float64) string {
	if high <= low {
		high = low + 1
	}
	pos := int(440 * (current - low) / (high - low))
	if pos < 0 {
		pos = 0
	}
	if pos > 440 {
		pos = 440
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="480" height="120">
<text x="10" y="20" font-size="14">%s</text>
<line x1="20" y1="70" x2="460" y2="70" stroke="#999" stroke-width="4"/>
<circle cx="%d" cy="70" r="7" fill="#d94a4a"/>
<text x="10" y="105" font-size="11">low %.2f</text>
<text x="390" y="105" font-size="11">high %.2f</text>
</svg>
`, title, 20+pos, low, high)
}

// minimalPDF builds a single-page PDF with the report text as plain lines.
func minimalPDF(text string) []byte {
	var content strings.Builder
	content.WriteString("BT /F1 10 Tf 40 800 Td 12 TL\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "\\", "\\\\")
		line = strings.ReplaceAll(line, "(", "\\(")
		line = strings.ReplaceAll(line, ")", "\\)")
		fmt.Fprintf(&content, "(%s) Tj T*\n", line)
	}
	content.WriteString("ET")

	stream := content.String()
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var out strings.Builder
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&out, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(out.String())
}

var _ Renderer = (*FileRenderer)(nil)
