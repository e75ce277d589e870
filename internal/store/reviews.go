package store

import (
	"context"
	"fmt"

	"shop-service/internal/models"
)

// CreateReview persists a product review
func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", review.Rating)
	}

	query := `
		INSERT INTO reviews (product_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, review, query,
		review.ProductID, review.UserID, review.Rating, review.Comment)
}

// GetReviewsByProduct retrieves reviews for a product, newest first
func (s *Store) GetReviewsByProduct(ctx context.Context, productID int64) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.SelectContext(ctx, &reviews,
		"SELECT * FROM reviews WHERE product_id = $1 ORDER BY created_at DESC", productID)
	return reviews, err
}

// GetAverageRating computes the average rating for a product, 0 when
// the product has no reviews
func (s *Store) GetAverageRating(ctx context.Context, productID int64) (float64, error) {
	var avg float64
	err := s.db.GetContext(ctx, &avg,
		"SELECT COALESCE(AVG(rating), 0)::float FROM reviews WHERE product_id = $1", productID)
	return avg, err
}
