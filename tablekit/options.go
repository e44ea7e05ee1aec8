package tablekit

import (
	"io"

	"github.com/charmbracelet/log"
)

// DefaultConvertLimit is the largest search result Table.Search converts eagerly.
const DefaultConvertLimit = 100

// Options configures a Table.
type Options struct {
	ConvertSearch bool        // Fetch and wrap search results up front
	ConvertLimit  int         // Results above this many are wrapped lazily
	Logger        *log.Logger // Warnings about unconverted searches. Default discards.
}

// WithConvertSearch enables or disables eager conversion of search results.
func WithConvertSearch(convert bool) func(*Options) {
	return func(o *Options) { o.ConvertSearch = convert }
}

// WithConvertLimit sets the largest search result converted eagerly.
func WithConvertLimit(n int) func(*Options) {
	return func(o *Options) { o.ConvertLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

func newOptions(opts []func(*Options)) Options {
	options := Options{
		ConvertSearch: true,
		ConvertLimit:  DefaultConvertLimit,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = log.New(io.Discard)
	}
	if options.ConvertLimit < 0 {
		options.ConvertLimit = 0
	}
	return options
}
