package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/ccitt"

	"loadplan/internal/domain"
)

// pageImages extracts the embedded raster images of one page, decoded to
// formats OCR and vision providers accept: JPEG streams pass through
// untouched, CCITT fax and uncompressed data are re-encoded as PNG.
// Unsupported encodings are skipped, largest images sort first.
func pageImages(ctx *model.Context, pageNr int) ([]domain.PageImage, error) {
	if ctx.Optimize == nil {
		return nil, nil
	}
	var out []domain.PageImage
	for _, objNr := range pdfcpu.ImageObjNrs(ctx, pageNr) {
		entry, ok := ctx.Table[objNr]
		if !ok || entry == nil || entry.Free || entry.Object == nil {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		img, err := decodeImageStream(&sd)
		if err != nil || len(img.Data) == 0 {
			continue
		}
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Width*out[i].Height > out[j].Width*out[j].Height
	})
	return out, nil
}

func decodeImageStream(sd *types.StreamDict) (domain.PageImage, error) {
	width := dictInt(sd, "Width", 0)
	height := dictInt(sd, "Height", 0)
	if width <= 0 || height <= 0 {
		return domain.PageImage{}, fmt.Errorf("image stream without dimensions")
	}

	filters := streamFilters(sd)
	last := ""
	if len(filters) > 0 {
		last = filters[len(filters)-1]
	}

	switch last {
	case "DCTDecode":
		// The raw stream is a complete JPEG file.
		return domain.PageImage{Format: "jpeg", Width: width, Height: height, Data: sd.Raw}, nil
	case "CCITTFaxDecode":
		return decodeCCITT(sd, width, height)
	case "FlateDecode", "":
		return decodeUncompressed(sd, width, height)
	default:
		return domain.PageImage{}, fmt.Errorf("unsupported image filter %q", last)
	}
}

// decodeCCITT handles Group 3/4 fax streams, the common encoding for
// scanned monochrome blueprints.
func decodeCCITT(sd *types.StreamDict, width, height int) (domain.PageImage, error) {
	k := 0
	blackIs1 := false
	if obj, found := sd.Find("DecodeParms"); found {
		if parms, ok := obj.(types.Dict); ok {
			if v, found := parms.Find("K"); found {
				if i, ok := v.(types.Integer); ok {
					k = int(i)
				}
			}
			if v, found := parms.Find("Columns"); found {
				if i, ok := v.(types.Integer); ok && int(i) > 0 {
					width = int(i)
				}
			}
			if v, found := parms.Find("BlackIs1"); found {
				if b, ok := v.(types.Boolean); ok {
					blackIs1 = bool(b)
				}
			}
		}
	}
	if k > 0 {
		return domain.PageImage{}, fmt.Errorf("mixed-mode CCITT (K>0) not supported")
	}
	subFormat := ccitt.Group3
	if k < 0 {
		subFormat = ccitt.Group4
	}

	gray := image.NewGray(image.Rect(0, 0, width, height))
	opts := &ccitt.Options{Invert: blackIs1, Align: false}
	if err := ccitt.DecodeIntoGray(gray, bytes.NewReader(sd.Raw), ccitt.MSB, subFormat, opts); err != nil {
		return domain.PageImage{}, fmt.Errorf("ccitt decode: %w", err)
	}
	return encodePNG(gray, width, height)
}

// decodeUncompressed handles flate-compressed or raw sample data in
// DeviceGray or DeviceRGB at 1 or 8 bits per component.
func decodeUncompressed(sd *types.StreamDict, width, height int) (domain.PageImage, error) {
	if err := sd.Decode(); err != nil {
		return domain.PageImage{}, fmt.Errorf("stream decode: %w", err)
	}
	data := sd.Content
	bpc := dictInt(sd, "BitsPerComponent", 8)
	colorSpace := dictName(sd, "ColorSpace")

	switch {
	case colorSpace == "DeviceGray" && bpc == 8:
		if len(data) < width*height {
			return domain.PageImage{}, fmt.Errorf("short gray image data")
		}
		gray := &image.Gray{Pix: data[:width*height], Stride: width, Rect: image.Rect(0, 0, width, height)}
		return encodePNG(gray, width, height)
	case colorSpace == "DeviceGray" && bpc == 1:
		rowBytes := (width + 7) / 8
		if len(data) < rowBytes*height {
			return domain.PageImage{}, fmt.Errorf("short bilevel image data")
		}
		gray := image.NewGray(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			row := data[y*rowBytes:]
			for x := 0; x < width; x++ {
				// 1 bits are white in DeviceGray.
				if row[x/8]&(0x80>>uint(x%8)) != 0 {
					gray.SetGray(x, y, color.Gray{Y: 0xff})
				}
			}
		}
		return encodePNG(gray, width, height)
	case colorSpace == "DeviceRGB" && bpc == 8:
		if len(data) < width*height*3 {
			return domain.PageImage{}, fmt.Errorf("short rgb image data")
		}
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 3
				i := rgba.PixOffset(x, y)
				rgba.Pix[i] = data[off]
				rgba.Pix[i+1] = data[off+1]
				rgba.Pix[i+2] = data[off+2]
				rgba.Pix[i+3] = 0xff
			}
		}
		return encodePNG(rgba, width, height)
	default:
		return domain.PageImage{}, fmt.Errorf("unsupported image colorspace %q at %d bpc", colorSpace, bpc)
	}
}

func encodePNG(img image.Image, width, height int) (domain.PageImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.PageImage{}, fmt.Errorf("png encode: %w", err)
	}
	return domain.PageImage{Format: "png", Width: width, Height: height, Data: buf.Bytes()}, nil
}

func streamFilters(sd *types.StreamDict) []string {
	obj, found := sd.Find("Filter")
	if !found {
		return nil
	}
	switch f := obj.(type) {
	case types.Name:
		return []string{string(f)}
	case types.Array:
		var names []string
		for _, o := range f {
			if n, ok := o.(types.Name); ok {
				names = append(names, string(n))
			}
		}
		return names
	}
	return nil
}

func dictInt(sd *types.StreamDict, key string, def int) int {
	obj, found := sd.Find(key)
	if !found {
		return def
	}
	if i, ok := obj.(types.Integer); ok {
		return int(i)
	}
	return def
}

func dictName(sd *types.StreamDict, key string) string {
	obj, found := sd.Find(key)
	if !found {
		return ""
	}
	if n, ok := obj.(types.Name); ok {
		return string(n)
	}
	return ""
}
