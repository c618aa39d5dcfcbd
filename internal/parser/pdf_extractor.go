package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"

	"github.com/zthsk/semantic-resume-screening/internal/logger"
)

// pdfExtractTimeout 单个PDF的提取超时
const pdfExtractTimeout = 30 * time.Second

// PDFExtractor 使用eino的PDF解析器把上传的PDF简历还原为纯文本，
// 之后交给markdown简历解析器处理
type PDFExtractor struct {
	parser *pdf.PDFParser
}

// NewPDFExtractor 初始化PDF文本提取器。
// 不按页面分割，整份文档作为一段连续文本返回
func NewPDFExtractor(ctx context.Context) (*PDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建PDF解析器失败: %w", err)
	}
	return &PDFExtractor{parser: p}, nil
}

// ExtractText 从Reader中提取PDF全文与元数据
func (e *PDFExtractor) ExtractText(ctx context.Context, reader io.Reader, uri string) (string, map[string]interface{}, error) {
	startTime := time.Now()

	extraMeta := map[string]interface{}{
		"uri":             uri,
		"extraction_time": startTime.Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(ctx, pdfExtractTimeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader,
		einoparser.WithURI(uri),
		einoparser.WithExtraMeta(extraMeta),
	)

	duration := time.Since(startTime)
	if err != nil {
		return "", extraMeta, fmt.Errorf("PDF解析失败 (uri=%s): %w", uri, err)
	}
	if len(docs) == 0 {
		return "", extraMeta, fmt.Errorf("PDF解析没有返回任何文档 (uri=%s)", uri)
	}

	// 合并所有文档内容，多文档之间补一个分页标记
	var fullContent string
	for i, doc := range docs {
		fullContent += doc.Content
		if i < len(docs)-1 {
			fullContent += "\n\n--- Page Break (inferred) ---\n\n"
		}
	}

	metadata := make(map[string]interface{})
	if docs[0].MetaData != nil {
		metadata = docs[0].MetaData
	}
	for k, v := range extraMeta {
		metadata[k] = v
	}
	metadata["processing_duration_ms"] = duration.Milliseconds()
	metadata["document_count"] = len(docs)
	metadata["text_length"] = len(fullContent)

	logger.Debug().
		Str("uri", uri).
		Int("chars", len(fullContent)).
		Dur("duration", duration).
		Msg("PDF文本提取完成")

	return fullContent, metadata, nil
}

// ExtractTextFromBytes 从字节数组提取PDF全文
func (e *PDFExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	return e.ExtractText(ctx, bytes.NewReader(data), uri)
}

// ExtractTextFromFile 从文件路径提取PDF全文
func (e *PDFExtractor) ExtractTextFromFile(ctx context.Context, filePath string) (string, map[string]interface{}, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", nil, NewSourceError(filePath, err)
	}
	defer file.Close()

	return e.ExtractText(ctx, file, filePath)
}
