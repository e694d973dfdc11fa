package uploader

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"assetpipe/internal/service/upload"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusSigning    Status = "signing"
	StatusUploading  Status = "uploading"
	StatusConfirming Status = "confirming"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusCanceled   Status = "canceled"
)

// Active 占用并发槽位的状态
func (s Status) Active() bool {
	return s == StatusSigning || s == StatusUploading || s == StatusConfirming
}

func (s Status) Finished() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCanceled
}

// Source 分片上传需要按偏移读取
type Source interface {
	io.ReaderAt
	io.Closer
}

// File 待上传的文件；Open 在每次尝试时调用一次
type File struct {
	Name        string
	Size        int64
	ContentType string
	Purpose     upload.Purpose
	ContextID   string
	Open        func() (Source, error)
}

type Item struct {
	ID           string
	File         File
	Status       Status
	Progress     int
	ObjectKey    string
	ErrorMessage string
	Result       *upload.ConfirmResult
}

type bytesSource struct {
	*bytes.Reader
}

func (bytesSource) Close() error { return nil }

// BytesFile 内存中的文件，测试与小文件使用
func BytesFile(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Open: func() (Source, error) {
			return bytesSource{bytes.NewReader(data)}, nil
		},
	}
}

// LocalFile 读取本地文件信息，内容类型按文件头检测
func LocalFile(path string) (File, error) {
	st, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        filepath.Base(path),
		Size:        st.Size(),
		ContentType: mt.String(),
		Open: func() (Source, error) {
			return os.Open(path)
		},
	}, nil
}
