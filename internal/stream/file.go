package stream

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/wfunc/survivor-indexer/internal/errors"
)

// 单行最大长度
const maxLineSize = 16 * 1024 * 1024

// FileSource 回放 JSON lines 文件，每行一条消息
type FileSource struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenFile 打开回放文件
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStreamConnect, "file=%s", path)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &FileSource{f: f, scanner: scanner}, nil
}

// FileOpener 回放文件总是从头读取，已应用的区块由驱动跳过
func FileOpener(path string) Opener {
	return func(ctx context.Context, from uint64) (Source, error) {
		return OpenFile(path)
	}
}

// Next 实现 Source
func (s *FileSource) Next(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, errors.Wrapf(err, errors.ErrStreamReceive, "line=%d", s.line+1)
			}
			return nil, io.EOF
		}
		s.line++

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := parseMessage(line)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrMessageFormat, "line=%d", s.line)
		}
		return msg, nil
	}
}

// Close 实现 Source
func (s *FileSource) Close() error {
	return s.f.Close()
}
