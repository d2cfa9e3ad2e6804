package nn

import (
	"image"

	"github.com/bmharper/tiledinference"
)

// Run tiled inference on the image.
// Camera trap stills are often 12 megapixels or more, and a small animal at the edge of the
// frame disappears when the whole image is squashed down to the model size. If the image is
// larger than the model, we split it into overlapping tiles, run each tile through the model,
// and merge the boxes that straddle tile boundaries.
// If the model is larger than the image, then we just run the model directly, so it is safe
// to call TiledInference on any image.
// Tiles are processed one at a time, because the detector is not assumed to be thread safe.
func TiledInference(model ObjectDetector, img *image.RGBA, _params *DetectionParams) ([]ObjectDetection, error) {
	config := model.Config()

	// Clip at the very end, so that boxes cut by a tile edge can still merge.
	params := *_params
	params.Unclipped = true

	// Somewhat arbitrary. Should probably be some multiple of the model size.
	minPadding := 32

	bounds := img.Bounds()
	tiling := tiledinference.MakeTiling(bounds.Dx(), bounds.Dy(), config.Width, config.Height, minPadding)

	allObjects := []ObjectDetection{}
	allBoxes := []tiledinference.Box{}
	for ty := 0; ty < tiling.NumY; ty++ {
		for tx := 0; tx < tiling.NumX; tx++ {
			objects, boxes, err := detectTile(model, &params, tiling, tx, ty, img)
			if err != nil {
				return nil, err
			}
			allObjects = append(allObjects, objects...)
			allBoxes = append(allBoxes, boxes...)
		}
	}

	finalClip := Rect{
		X:      0,
		Y:      0,
		Width:  int32(bounds.Dx()),
		Height: int32(bounds.Dy()),
	}

	merged := []ObjectDetection{}
	if tiling.IsSingle() {
		merged = allObjects
		for i := range merged {
			merged[i].Box = merged[i].Box.Intersection(finalClip)
		}
	} else {
		groups, mergedBoxes := tiledinference.MergeBoxes(tiling, allBoxes, nil)
		for igroup, group := range groups {
			newObj := allObjects[group[0]]
			r := mergedBoxes[igroup]

			// The merged box can be larger than the first object in the group
			newObj.Box = Rect{X: int32(r.Rect.X1), Y: int32(r.Rect.Y1), Width: int32(r.Rect.Width()), Height: int32(r.Rect.Height())}
			newObj.Box = newObj.Box.Intersection(finalClip)

			for _, el := range group[1:] {
				newObj.Confidence = max(newObj.Confidence, allObjects[el].Confidence)
			}
			merged = append(merged, newObj)
		}
	}

	return merged, nil
}

// Returns two parallel arrays
func detectTile(model ObjectDetector, params *DetectionParams, tiling tiledinference.Tiling, tx, ty int, img *image.RGBA) ([]ObjectDetection, []tiledinference.Box, error) {
	tileRect := tiling.TileRect(tx, ty)
	origin := img.Bounds().Min
	sub := image.Rect(int(tileRect.X1), int(tileRect.Y1), int(tileRect.X2), int(tileRect.Y2)).Add(origin)
	crop := img.SubImage(sub).(*image.RGBA)
	// Detectors work in coordinates relative to the top-left of the image they're given
	crop.Rect = crop.Rect.Sub(crop.Rect.Min)
	objects, err := model.DetectObjects(crop, params)
	if err != nil {
		return nil, nil, err
	}
	boxes := []tiledinference.Box{}
	for i, obj := range objects {
		box := tiledinference.Box{
			Rect: tiledinference.Rect{
				X1: obj.Box.X,
				Y1: obj.Box.Y,
				X2: obj.Box.X2(),
				Y2: obj.Box.Y2(),
			},
			Class: int32(obj.Class),
			Tile:  tiling.MakeTileIndex(tx, ty),
		}
		box.Rect.Offset(int32(tileRect.X1), int32(tileRect.Y1))
		objects[i].Box.Offset(int32(tileRect.X1), int32(tileRect.Y1))
		boxes = append(boxes, box)
	}
	return objects, boxes, nil
}
