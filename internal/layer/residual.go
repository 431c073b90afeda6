package layer

import (
	"fmt"

	"momenta/internal/tensor"
)

// Merge adds a main branch and a skip branch. Addition is linear, so the
// same rule advances signal and noise independently. Shape agreement is
// validated at build time; a mismatch here means the plan was corrupted.
func Merge(main, skip *tensor.Tensor) (*tensor.Tensor, error) {
	if !main.SameShape(skip) {
		return nil, fmt.Errorf("residual merge: branch shape %s != skip shape %s", main.ShapeString(), skip.ShapeString())
	}
	out := main.Like()
	outData := out.Data()
	mainData := main.Data()
	skipData := skip.Data()
	for i := range outData {
		outData[i] = mainData[i] + skipData[i]
	}
	return out, nil
}
