package bench

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodespeedPost(t *testing.T) {
	var got []map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = append(got, map[string]string{
			"project":      r.PostForm.Get("project"),
			"commitid":     r.PostForm.Get("commitid"),
			"executable":   r.PostForm.Get("executable"),
			"benchmark":    r.PostForm.Get("benchmark"),
			"result_value": r.PostForm.Get("result_value"),
			"environment":  r.PostForm.Get("environment"),
		})
		w.Write([]byte("Result data saved successfully"))
	}))
	defer ts.Close()

	cs, err := NewCodespeed(ts.URL+"/result/add/", "nativeimg", "abc123")
	require.NoError(t, err)

	rs := Results{
		{File: "a.jpg", Backend: "pil", Elapsed: 250 * time.Millisecond},
		{File: "a.jpg", Backend: "magick", Err: assert.AnError},
	}
	require.NoError(t, cs.PostAll(context.Background(), rs))

	require.Len(t, got, 1)
	assert.Equal(t, "nativeimg", got[0]["project"])
	assert.Equal(t, "abc123", got[0]["commitid"])
	assert.Equal(t, "pil", got[0]["executable"])
	assert.Equal(t, "thumbnail_a.jpg", got[0]["benchmark"])
	assert.Equal(t, "0.25", got[0]["result_value"])
	assert.Equal(t, platform(), got[0]["environment"])
}

func TestCodespeedServerErrorIsLogged(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad executable", http.StatusBadRequest)
	}))
	defer ts.Close()

	cs, err := NewCodespeed(ts.URL, "nativeimg", "abc123")
	require.NoError(t, err)
	cs.Environment = "ci"

	assert.Equal(t, "ci", cs.Form(Result{}).Get("environment"))
	assert.NoError(t, cs.Post(context.Background(), Result{File: "a.jpg", Backend: "pil"}))
}

func TestCodespeedTransportError(t *testing.T) {
	cs, err := NewCodespeed("http://127.0.0.1:1/result/add/", "nativeimg", "abc")
	require.NoError(t, err)
	assert.Error(t, cs.Post(context.Background(), Result{}))
}
