package ingestion

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/cache/redis"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/trace"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/utils"
)

const (
	windowWordLimit   = 1800
	windowWordOverlap = 400
	maxWindowChars    = 12000
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	imagePattern   = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)
	htmlTagPattern = regexp.MustCompile(`(?i)</?(?:html|body|div|p|span|table|h[1-6]|ul|ol|li|br)\b`)
	riskPattern    = regexp.MustCompile(`(?i)\b(risk|hazard|harm|severit|probabilit|occurrence|mitigat|residual|acceptab|benefit)`)
)

// Embedder produces dense vectors for batches of chunk text.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter is the slice of the vector index the processor writes to.
type VectorWriter interface {
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk, embeddings [][]float32) error
	DeleteByDoc(ctx context.Context, docID string) error
}

// Processor turns extracted document pages into indexed chunks. Pages
// arrive as markdown or HTML; HTML is reduced to markdown-shaped text
// first so heading, table and figure detection works on one format.
type Processor struct {
	db       *sqlite.Client
	vector   VectorWriter
	embedder Embedder
	cache    *redis.Client
	trace    *trace.Builder
}

// NewProcessor wires the processor. vector, cache and trace may be nil;
// embeddings are skipped entirely when no vector index is attached.
func NewProcessor(db *sqlite.Client, vector VectorWriter, embedder Embedder, cache *redis.Client, tr *trace.Builder) *Processor {
	return &Processor{
		db:       db,
		vector:   vector,
		embedder: embedder,
		cache:    cache,
		trace:    tr,
	}
}

// Result summarizes one ingestion.
type Result struct {
	DocID      string `json:"doc_id"`
	PageCount  int    `json:"page_count"`
	WordCount  int    `json:"word_count"`
	ChunkCount int    `json:"chunk_count"`
	Reingested bool   `json:"reingested,omitempty"`
	Unchanged  bool   `json:"unchanged,omitempty"`
}

// IngestPages processes one document. The document id is derived from
// (org, name) so re-uploading a file replaces its chunks in place;
// unchanged content short-circuits on the stored hash.
func (p *Processor) IngestPages(ctx context.Context, name, orgID string, pages []string) (*Result, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages supplied")
	}

	logger.Info("Processing document", zap.String("name", name), zap.Int("pages", len(pages)))

	docID := utils.HashString(orgID + ":" + name)
	contentHash := utils.SHA256String(strings.Join(pages, "\n"))

	reingested := false
	if existing, err := p.db.GetDocument(docID); err == nil {
		if existing.ContentHash == contentHash {
			logger.Info("Document content unchanged, skipping re-ingestion", zap.String("doc_id", docID))
			return &Result{
				DocID:      docID,
				PageCount:  existing.PageCount,
				WordCount:  existing.WordCount,
				ChunkCount: existing.ChunkCount,
				Unchanged:  true,
			}, nil
		}
		reingested = true
		if err := p.invalidate(ctx, docID); err != nil {
			return nil, err
		}
	}

	cleaned := make([]string, len(pages))
	for i, page := range pages {
		cleaned[i] = p.cleanPage(page)
	}

	scan := scanPages(cleaned)
	if len(scan.tokens) == 0 {
		return nil, fmt.Errorf("no indexable content in %q", name)
	}

	now := time.Now()
	chunks := buildChunks(docID, orgID, scan, now)

	doc := &models.Document{
		ID:          docID,
		Name:        name,
		OrgID:       orgID,
		ContentHash: contentHash,
		PageCount:   len(pages),
		WordCount:   len(scan.tokens),
		ChunkCount:  len(chunks),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.db.InsertDocument(doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	for i := range chunks {
		if err := p.db.InsertChunk(&chunks[i]); err != nil {
			return nil, fmt.Errorf("failed to store chunk %s: %w", chunks[i].ID, err)
		}
	}

	if p.vector != nil {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}
		embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(embeddings) != len(chunks) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
		}
		if err := p.vector.InsertChunks(ctx, chunks, embeddings); err != nil {
			return nil, fmt.Errorf("failed to index chunks: %w", err)
		}
	}

	metrics.DocumentsProcessed.Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))

	logger.Info("Document processed",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Int("words", len(scan.tokens)),
		zap.Bool("reingested", reingested),
	)

	return &Result{
		DocID:      docID,
		PageCount:  doc.PageCount,
		WordCount:  doc.WordCount,
		ChunkCount: doc.ChunkCount,
		Reingested: reingested,
	}, nil
}

// invalidate clears every derived artifact of a document before its
// content is replaced. Cached verdicts and context flags go with it.
func (p *Processor) invalidate(ctx context.Context, docID string) error {
	if err := p.db.DeleteChunksByDoc(docID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if p.vector != nil {
		if err := p.vector.DeleteByDoc(ctx, docID); err != nil {
			return fmt.Errorf("failed to clear vector index: %w", err)
		}
	}
	if p.cache != nil {
		if err := p.cache.InvalidateDocument(ctx, docID); err != nil {
			logger.Warn("Failed to invalidate document cache", zap.String("doc_id", docID), zap.Error(err))
		}
	}
	if p.trace != nil {
		if err := p.trace.RemoveDocument(ctx, docID); err != nil {
			logger.Warn("Failed to clear traceability links", zap.String("doc_id", docID), zap.Error(err))
		}
	}
	return nil
}

func (p *Processor) cleanPage(page string) string {
	if !htmlTagPattern.MatchString(page) {
		return page
	}
	return htmlToText(page)
}

// htmlToText reduces an HTML page to markdown-shaped text: headings
// become #-prefixed lines, tables become pipe rows with a --- separator
// after the first row, images become markdown image syntax. Line
// structure is preserved so the page scan sees the same shapes as a
// native markdown page.
func htmlToText(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		alt := strings.TrimSpace(s.AttrOr("alt", ""))
		src := strings.TrimSpace(s.AttrOr("src", ""))
		s.ReplaceWithHtml(html.EscapeString(fmt.Sprintf("![%s](%s)", alt, src)))
	})

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		if len(name) != 2 {
			return
		}
		level := int(name[1] - '0')
		title := strings.TrimSpace(s.Text())
		s.SetText("\n" + strings.Repeat("#", level) + " " + title + "\n")
	})

	doc.Find("table").Each(func(i int, tbl *goquery.Selection) {
		var sb strings.Builder
		tbl.Find("tr").Each(func(row int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(j int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) == 0 {
				return
			}
			sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
			if row == 0 {
				sb.WriteString("|" + strings.Repeat(" --- |", len(cells)) + "\n")
			}
		})
		tbl.SetText("\n" + sb.String() + "\n")
	})

	text := doc.Find("body").Text()

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

var spacePattern = regexp.MustCompile(`[ \t]+`)

type heading struct {
	text      string
	level     int
	page      int
	wordIndex int
	path      string
}

type tableBlock struct {
	page int
	path string
	text string
}

type figureBlock struct {
	page int
	path string
	alt  string
	src  string
}

type scanResult struct {
	headings   []heading
	tables     []tableBlock
	figures    []figureBlock
	tokens     []string
	tokenPages []int
}

// scanPages walks every page once, building the heading timeline, the
// table and figure records, and the global token stream with per-token
// page numbers. Heading nesting follows markdown levels: a new heading
// pops every stacked heading at the same or deeper level.
func scanPages(pages []string) scanResult {
	var res scanResult
	var stack []heading
	globalWord := 0

	for pageIdx, pageText := range pages {
		pageNo := pageIdx + 1
		lines := strings.Split(pageText, "\n")

		var block []string
		blockPage, blockPath := pageNo, ""
		flush := func() {
			if len(block) >= 2 && anyContains(block, "---") {
				res.tables = append(res.tables, tableBlock{
					page: blockPage,
					path: blockPath,
					text: strings.Join(block, "\n"),
				})
			}
			block = block[:0]
		}

		for _, rawLine := range lines {
			line := strings.TrimSpace(rawLine)

			if m := headingPattern.FindStringSubmatch(line); m != nil {
				level := len(m[1])
				title := strings.TrimSpace(m[2])
				for len(stack) > 0 && stack[len(stack)-1].level >= level {
					stack = stack[:len(stack)-1]
				}
				stack = append(stack, heading{text: title, level: level})
				res.headings = append(res.headings, heading{
					text:      title,
					level:     level,
					page:      pageNo,
					wordIndex: globalWord,
					path:      sectionPath(stack),
				})
			}

			if strings.Contains(line, "|") {
				if len(block) == 0 {
					blockPage, blockPath = pageNo, sectionPath(stack)
				}
				block = append(block, line)
			} else {
				flush()
			}

			for _, m := range imagePattern.FindAllStringSubmatch(line, -1) {
				res.figures = append(res.figures, figureBlock{
					page: pageNo,
					path: sectionPath(stack),
					alt:  strings.TrimSpace(m[1]),
					src:  strings.TrimSpace(m[2]),
				})
			}

			fields := strings.Fields(rawLine)
			res.tokens = append(res.tokens, fields...)
			for range fields {
				res.tokenPages = append(res.tokenPages, pageNo)
			}
			globalWord += len(fields)
		}
		flush()
	}

	return res
}

func sectionPath(stack []heading) string {
	if len(stack) == 0 {
		return ""
	}
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = h.text
	}
	return strings.Join(parts, " > ")
}

func anyContains(lines []string, substr string) bool {
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type window struct {
	startPage int
	path      string
	text      string
	wordCount int
}

// buildWindows cuts overlapping coverage windows over the token stream.
// Consecutive windows share windowWordOverlap words so evidence near a
// boundary is retrievable from both sides.
func buildWindows(tokens []string, tokenPages []int, headings []heading) []window {
	stride := windowWordLimit - windowWordOverlap
	var windows []window

	for start := 0; start < len(tokens); start += stride {
		end := start + windowWordLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		winTokens := tokens[start:end]
		windows = append(windows, window{
			startPage: tokenPages[start],
			path:      headingPathAt(headings, start),
			text:      truncateWindow(strings.Join(winTokens, " ")),
			wordCount: len(winTokens),
		})
		if end == len(tokens) {
			break
		}
	}

	return windows
}

// headingPathAt resolves the section path in force at a global word
// index: the last heading at or before that position.
func headingPathAt(headings []heading, wordIndex int) string {
	pos := sort.Search(len(headings), func(i int) bool {
		return headings[i].wordIndex > wordIndex
	}) - 1
	if pos < 0 {
		return ""
	}
	return headings[pos].path
}

func truncateWindow(text string) string {
	if len(text) <= maxWindowChars {
		return text
	}
	cut := maxWindowChars - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// buildChunks emits the coverage windows as text chunks, then one chunk
// per detected table and per captioned figure. Tables flatten inside a
// joined window, so they get their own chunks with line structure kept.
func buildChunks(docID, orgID string, scan scanResult, now time.Time) []models.DocumentChunk {
	var chunks []models.DocumentChunk
	add := func(page int, path, artifactType, text string, words int) {
		chunks = append(chunks, models.DocumentChunk{
			ID:           fmt.Sprintf("%s_chunk_%d", docID, len(chunks)),
			DocID:        docID,
			OrgID:        orgID,
			ChunkIndex:   len(chunks),
			Page:         page,
			SectionPath:  path,
			ArtifactType: artifactType,
			RiskContent:  riskPattern.MatchString(text),
			WordCount:    words,
			Text:         text,
			CreatedAt:    now,
		})
	}

	for _, win := range buildWindows(scan.tokens, scan.tokenPages, scan.headings) {
		add(win.startPage, win.path, evidence.ArtifactText, win.text, win.wordCount)
	}
	for _, tbl := range scan.tables {
		add(tbl.page, tbl.path, evidence.ArtifactTable, tbl.text, len(strings.Fields(tbl.text)))
	}
	for _, fig := range scan.figures {
		text := fig.alt
		if text == "" {
			text = figureName(fig.src)
		}
		if text == "" {
			continue
		}
		add(fig.page, fig.path, evidence.ArtifactFigure, text, len(strings.Fields(text)))
	}

	return chunks
}

// figureName derives a readable label from an image source path, for
// figures without alt text.
func figureName(src string) string {
	base := src
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(base))
}
