package indexer

import "strings"

// Category 根据扩展名自动归类的文件类别，永不为空.
type Category string

const (
	CategoryImage         Category = "Image"
	CategoryDocument      Category = "Document"
	CategoryMusic         Category = "Music"
	CategoryVideo         Category = "Video"
	CategoryUncategorized Category = "Uncategorized"
)

// categoryTable 小写扩展名（不含点）到类别.
var categoryTable = buildCategoryTable(map[Category][]string{
	CategoryImage: {
		"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp", "svg", "ico", "heic", "heif", "raw", "cr2", "nef", "psd",
	},
	CategoryDocument: {
		"pdf", "doc", "docx", "odt", "rtf", "txt", "md", "xls", "xlsx", "ods", "csv", "ppt", "pptx", "odp", "epub", "tex",
	},
	CategoryMusic: {
		"mp3", "wav", "flac", "aac", "ogg", "oga", "m4a", "wma", "opus", "aiff", "mid", "midi",
	},
	CategoryVideo: {
		"mp4", "mkv", "avi", "mov", "wmv", "flv", "webm", "m4v", "mpg", "mpeg", "3gp", "ts",
	},
})

func buildCategoryTable(groups map[Category][]string) map[string]Category {
	table := make(map[string]Category)

	for category, exts := range groups {
		for _, ext := range exts {
			table[ext] = category
		}
	}

	return table
}

// Classify 返回扩展名对应的类别，ext 可以带点、大小写不限.
func Classify(ext string) Category {
	if c, ok := categoryTable[normalizeExt(ext)]; ok {
		return c
	}

	return CategoryUncategorized
}

// Categories 返回全部类别.
func Categories() []Category {
	return []Category{CategoryImage, CategoryDocument, CategoryMusic, CategoryVideo, CategoryUncategorized}
}

// ParseCategory 不区分大小写地解析类别名.
func ParseCategory(name string) (Category, bool) {
	for _, c := range Categories() {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}

	return "", false
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
