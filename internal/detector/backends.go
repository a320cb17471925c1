package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"goodzwork-checkin/models"
)

// ============================================================
// DNN - single-shot detector (res10 SSD, Caffe or ONNX)
// ============================================================

type dnnBackend struct {
	net       gocv.Net
	inputSize int
	threshold float32
}

func newDNN(model, config string, inputSize int, threshold float64) (*dnnBackend, error) {
	net := gocv.ReadNet(model, config)
	if net.Empty() {
		return nil, fmt.Errorf("failed to read network from %s", model)
	}
	return &dnnBackend{
		net:       net,
		inputSize: inputSize,
		threshold: float32(threshold),
	}, nil
}

func (b *dnnBackend) detect(mat gocv.Mat) []models.FaceBox {
	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(b.inputSize, b.inputSize),
		gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	b.net.SetInput(blob, "")
	prob := b.net.Forward("")
	defer prob.Close()

	// [1,1,N,7]: image id, class, confidence, left, top, right, bottom
	detections := gocv.GetBlobChannel(prob, 0, 0)
	defer detections.Close()

	w := float32(mat.Cols())
	h := float32(mat.Rows())

	var boxes []models.FaceBox
	for row := 0; row < detections.Rows(); row++ {
		confidence := detections.GetFloatAt(row, 2)
		if confidence < b.threshold {
			continue
		}

		rect := image.Rect(
			int(detections.GetFloatAt(row, 3)*w),
			int(detections.GetFloatAt(row, 4)*h),
			int(detections.GetFloatAt(row, 5)*w),
			int(detections.GetFloatAt(row, 6)*h),
		).Intersect(image.Rect(0, 0, mat.Cols(), mat.Rows()))
		if rect.Empty() {
			continue
		}

		boxes = append(boxes, models.FaceBox{
			X:          rect.Min.X,
			Y:          rect.Min.Y,
			Width:      rect.Dx(),
			Height:     rect.Dy(),
			Confidence: float64(confidence),
		})
	}
	return boxes
}

func (b *dnnBackend) Close() error {
	return b.net.Close()
}

// ============================================================
// CASCADE - Haar classifier on a downscaled grayscale frame
// ============================================================

type cascadeBackend struct {
	classifier     gocv.CascadeClassifier
	detectionWidth int
}

func newCascade(model string, detectionWidth int) (*cascadeBackend, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(model) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier from %s", model)
	}
	return &cascadeBackend{classifier: classifier, detectionWidth: detectionWidth}, nil
}

func (b *cascadeBackend) detect(mat gocv.Mat) []models.FaceBox {
	origW, origH := mat.Cols(), mat.Rows()

	detectionImg := mat
	scale := 1.0
	if b.detectionWidth > 0 && origW > b.detectionWidth {
		scale = float64(b.detectionWidth) / float64(origW)
		targetH := int(float64(origH) * scale)

		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(b.detectionWidth, targetH), 0, 0, gocv.InterpolationLinear)
		detectionImg = resized
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(detectionImg, &gray, gocv.ColorBGRToGray)

	rects := b.classifier.DetectMultiScale(gray)

	boxes := make([]models.FaceBox, 0, len(rects))
	for _, r := range rects {
		x := int(float64(r.Min.X) / scale)
		y := int(float64(r.Min.Y) / scale)
		bw := int(float64(r.Dx()) / scale)
		bh := int(float64(r.Dy()) / scale)

		// Cascades carry no score; larger faces rank first.
		boxes = append(boxes, models.FaceBox{
			X:          x,
			Y:          y,
			Width:      bw,
			Height:     bh,
			Confidence: float64(bw*bh) / float64(origW*origH),
		})
	}
	return boxes
}

func (b *cascadeBackend) Close() error {
	return b.classifier.Close()
}
