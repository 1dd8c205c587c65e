package ocr

// Cell addresses one table cell; row 0 is the top of the image.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type CellResult struct {
	Cell
	Text  string
	Error error
}

// OCREngine turns one exported crop into raw text. textPath is where
// file-producing engines are told to write; engines that answer directly may
// ignore it.
type OCREngine interface {
	ProcessImage(imagePath, textPath string) (string, error)
	Close() error
}
