package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const zipMIME = "application/zip"

// createZip は files を outputPath の zip にまとめます。エントリ名はファイル名のみです。
func createZip(outputPath string, files []string) (err error) {
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("zipファイルの作成に失敗しました: %w", err)
	}
	defer func() {
		if cerr := outFile.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("zipファイルのクローズに失敗しました: %w", cerr)
		}
	}()

	zipWriter := zip.NewWriter(outFile)
	for _, path := range files {
		if err := addZipEntry(zipWriter, path); err != nil {
			zipWriter.Close()
			return err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("zipの書き込みに失敗しました: %w", err)
	}
	return nil
}

func addZipEntry(zw *zip.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("zip入力ファイルのオープンに失敗しました: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("zip入力ファイルの情報取得に失敗しました: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zipヘッダーの生成に失敗しました: %w", err)
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zipヘッダーの書き込みに失敗しました: %w", err)
	}
	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("zipへの書き込みに失敗しました: %w", err)
	}
	return nil
}

// checkArchive は生成物が zip として判定されることを確認します。
func checkArchive(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to inspect archive: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return nil
		}
	}
	return fmt.Errorf("archive has unexpected content type %s", mt.String())
}
