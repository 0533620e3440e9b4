package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/mrlokans/kobotoc/internal/entities"
)

// ErrDRMProtected matches entities.ErrContainerDRM with errors.Is.
var ErrDRMProtected = fmt.Errorf("epub: %w", entities.ErrContainerDRM)

type encryptionXML struct {
	XMLName       xml.Name `xml:"encryption"`
	EncryptedData []struct {
		EncryptionMethod struct {
			Algorithm string `xml:"Algorithm,attr"`
		} `xml:"EncryptionMethod"`
		CipherData struct {
			CipherReference struct {
				URI string `xml:"URI,attr"`
			} `xml:"CipherReference"`
		} `xml:"CipherData"`
	} `xml:"EncryptedData"`
}

// checkForDRM rejects Adobe ADEPT books and books whose content documents
// are listed in encryption.xml. Font obfuscation alone is accepted.
func checkForDRM(files map[string]*zip.File) error {
	if _, ok := files["META-INF/rights.xml"]; ok {
		return ErrDRMProtected
	}

	f, ok := files["META-INF/encryption.xml"]
	if !ok {
		return nil
	}

	data, err := readZipFile(f)
	if err != nil {
		return ErrDRMProtected
	}

	var enc encryptionXML
	if err := xml.Unmarshal(data, &enc); err != nil {
		return ErrDRMProtected
	}

	for _, ed := range enc.EncryptedData {
		if isFontObfuscation(ed.EncryptionMethod.Algorithm) {
			continue
		}
		if isContentFile(ed.CipherData.CipherReference.URI) {
			return ErrDRMProtected
		}
	}
	return nil
}

func isFontObfuscation(algorithm string) bool {
	if !strings.Contains(algorithm, "obfuscation") {
		return false
	}
	return strings.Contains(algorithm, "adobe.com") || strings.Contains(algorithm, "idpf.org")
}

func isContentFile(uri string) bool {
	uri = strings.ToLower(uri)
	for _, ext := range []string{".xhtml", ".html", ".htm", ".xml", ".css"} {
		if strings.HasSuffix(uri, ext) {
			return true
		}
	}
	return false
}
