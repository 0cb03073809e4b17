package index

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/camelcase"
	"github.com/blevesearch/bleve/v2/analysis/token/length"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	regexpTokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

const codeAnalyzer = "code"
const codeLengthFilter = "code_min_length"

// buildIndexMapping implements spec.md §4.5's per-field analyzer rules: a
// code-aware analyzer for content (lowercase, camelCase/snake_case/
// kebab-case-aware tokenization via bleve's camelCase filter, length >= 2),
// a path analyzer splitting on path/extension separators, and dual-indexed
// keyword/raw twins for project/version/extension/repository.
func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomTokenFilter(codeLengthFilter, map[string]interface{}{
		"type": length.Name,
		"min":  2.0,
		"max":  128.0,
	}); err != nil {
		return nil, err
	}
	if err := im.AddCustomAnalyzer(codeAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{camelcase.Name, lowercase.Name, codeLengthFilter},
	}); err != nil {
		return nil, err
	}
	if err := im.AddCustomTokenizer("path_separators", map[string]interface{}{
		"type":   regexpTokenizer.Name,
		"regexp": `[^/._\s-]+`,
	}); err != nil {
		return nil, err
	}
	if err := im.AddCustomAnalyzer("path", map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     "path_separators",
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = codeAnalyzer

	// The path_separators tokenizer breaks on "/", ".", "-", "_" and
	// whitespace, so "src/main_util.go" yields "src", "main", "util", "go".
	path := bleve.NewTextFieldMapping()
	path.Analyzer = "path"

	name := bleve.NewTextFieldMapping()
	name.Analyzer = "standard"

	nameKeyword := bleve.NewTextFieldMapping()
	nameKeyword.Analyzer = "keyword"

	analyzedText := bleve.NewTextFieldMapping()
	analyzedText.Analyzer = "standard"

	exactKeyword := bleve.NewTextFieldMapping()
	exactKeyword.Analyzer = "keyword"

	size := bleve.NewNumericFieldMapping()
	lastModified := bleve.NewNumericFieldMapping()

	last := bleve.NewTextFieldMapping()
	last.Analyzer = "standard"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", content)
	docMapping.AddFieldMappingsAt("path", path)
	docMapping.AddFieldMappingsAt("name", name)
	docMapping.AddFieldMappingsAt("name_keyword", nameKeyword)
	docMapping.AddFieldMappingsAt("project", analyzedText)
	docMapping.AddFieldMappingsAt("project_exact", exactKeyword)
	docMapping.AddFieldMappingsAt("version", analyzedText)
	docMapping.AddFieldMappingsAt("version_exact", exactKeyword)
	docMapping.AddFieldMappingsAt("extension", analyzedText)
	docMapping.AddFieldMappingsAt("extension_exact", exactKeyword)
	docMapping.AddFieldMappingsAt("repository_id", analyzedText)
	docMapping.AddFieldMappingsAt("repository_id_exact", exactKeyword)
	docMapping.AddFieldMappingsAt("last_author", last)
	docMapping.AddFieldMappingsAt("size", size)
	docMapping.AddFieldMappingsAt("last_modified_epoch", lastModified)

	im.DefaultMapping = docMapping
	return im, nil
}
