package http

import (
	"time"

	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/kv"
)

// FetchFrame describes a client request.
type FetchFrame struct {
	Method  method.Method
	URL     string
	Headers *kv.Storage
	Cookies *kv.Storage
	Content ContentFrame
	// Timeout limits the whole exchange. Zero disables it.
	Timeout time.Duration
	// MaxSize limits the response body. Zero disables the limit.
	MaxSize    int64
	VerifyPeer bool
}

func NewFetch(m method.Method, url string) *FetchFrame {
	return &FetchFrame{
		Method:     m,
		URL:        url,
		Headers:    kv.New(),
		Cookies:    kv.New(),
		VerifyPeer: true,
	}
}

// Upload appends a part to be sent as multipart/form-data.
func (f *FetchFrame) Upload(res Resource) *FetchFrame {
	f.Content.Resources = append(f.Content.Resources, res)
	return f
}

// Body sets an in-memory request body.
func (f *FetchFrame) Body(data []byte) *FetchFrame {
	f.Content.Set(data)
	return f
}
