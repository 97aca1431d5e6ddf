package model

import (
	"encoding/json"
	"io"
	"os"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

// SaveJSON は結果やモデルをJSONとしてファイルに保存する
//
// パラメータ:
//   - v: 保存する値（cpm.Result など）
//   - filename: 保存先のファイルパス
//
// 使用例:
//
//	res, _ := cpm.Predict(features, response)
//	err := model.SaveJSON(res, "cpm_result.json")
func SaveJSON(v interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer file.Close()

	return SaveJSONToWriter(v, file)
}

// SaveJSONToWriter は値をインデント付きJSONでWriterに書き出す
func SaveJSONToWriter(v interface{}, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// LoadJSON はファイルからJSONを読み込む
func LoadJSON(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	return LoadJSONFromReader(v, file)
}

// LoadJSONFromReader はReaderからJSONを読み込む
func LoadJSONFromReader(v interface{}, r io.Reader) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode JSON")
	}
	return nil
}
