package mesh

import (
	"bytes"
	"path"
	"strings"

	"eyewear-tryon/internal/errs"
)

// Parse decodes a volumetric asset. The format is sniffed from the content;
// name is only used to label the model and to recognise formats that are
// rejected outright.
func Parse(data []byte, name string) (*Model, error) {
	const op = "mesh.parse"
	if len(data) == 0 {
		return nil, errs.New(errs.AssetLoadFailed, op, "asset is empty")
	}

	var (
		m   *Model
		err error
	)
	switch {
	case bytes.HasPrefix(data, []byte("BMD")):
		m, err = ParseBMD(data)
	case bytes.HasPrefix(data, []byte("glTF")), isGLTFJSON(data):
		return nil, errs.New(errs.UnsupportedAssetFormat, op, "glTF assets are not supported")
	case looksLikeOBJ(data):
		m, err = ParseOBJ(bytes.NewReader(data))
	default:
		ext := strings.ToLower(path.Ext(name))
		return nil, errs.Newf(errs.UnsupportedAssetFormat, op, "unrecognised asset format (extension %q)", ext)
	}
	if err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	return m, nil
}

func isGLTFJSON(data []byte) bool {
	head := bytes.TrimSpace(data)
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("{")) && bytes.Contains(head, []byte(`"asset"`))
}
