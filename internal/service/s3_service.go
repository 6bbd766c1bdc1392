package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bazaar-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const imageUploadLifetime = 15 * time.Minute

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// S3Service encapsula o cliente S3 usado para as imagens dos anúncios
type S3Service struct {
	presignClient *s3.PresignClient
	bucketName    string
	publicBaseURL string
}

// NewS3Service cria um novo serviço S3. publicBaseURL é de onde as imagens
// são servidas depois do upload; vazio usa o endpoint público do bucket.
func NewS3Service(s3Client *s3.Client, bucketName, region, publicBaseURL string) *S3Service {
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucketName, region)
	}
	return &S3Service{
		// O PresignClient é o que realmente cria as URLs
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    bucketName,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// ImageUpload é o que o cliente precisa para enviar a imagem direto ao S3
type ImageUpload struct {
	UploadURL string    `json:"uploadUrl"`
	ImageURL  string    `json:"imageUrl"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewImageUpload gera a URL pré-assinada (PUT) para a imagem de um anúncio
func (s *S3Service) NewImageUpload(ctx context.Context, userID uuid.UUID, contentType string) (*ImageUpload, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("tipo de imagem não suportado %q: %w", contentType, models.ErrInvalidInput)
	}

	// Formato: items/USER_ID/ARQUIVO_UUID.ext
	objectKey := fmt.Sprintf("items/%s/%s%s", userID, uuid.New(), ext)

	request, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(imageUploadLifetime))
	if err != nil {
		log.Errorw("falha ao gerar Presigned PUT URL", "key", objectKey, "error", err)
		return nil, fmt.Errorf("falha ao gerar URL de upload")
	}

	return &ImageUpload{
		UploadURL: request.URL,
		ImageURL:  s.publicBaseURL + "/" + objectKey,
		ObjectKey: objectKey,
		ExpiresAt: time.Now().Add(imageUploadLifetime),
	}, nil
}
