package abtest

import (
	"fmt"

	"mailwave/pkg/errors"
	"mailwave/pkg/models"
)

// Partition splits total recipients into k contiguous groups. Every group
// but the last has floor(total/k) members; the last takes the remainder.
func Partition(total, k int) ([]int, error) {
	if k <= 0 {
		return nil, errors.ErrValidation.WithDetail("message", fmt.Sprintf("variant count must be positive, got %d", k))
	}
	if total < 0 {
		return nil, errors.ErrValidation.WithDetail("message", fmt.Sprintf("total must be non-negative, got %d", total))
	}

	size := total / k
	sizes := make([]int, k)
	for i := 0; i < k-1; i++ {
		sizes[i] = size
	}
	sizes[k-1] = total - size*(k-1)
	return sizes, nil
}

// Split cuts recipients into the groups given by Partition, preserving
// order.
func Split(recipients []*models.Contact, k int) ([][]*models.Contact, error) {
	sizes, err := Partition(len(recipients), k)
	if err != nil {
		return nil, err
	}
	groups := make([][]*models.Contact, k)
	offset := 0
	for i, n := range sizes {
		groups[i] = recipients[offset : offset+n]
		offset += n
	}
	return groups, nil
}
