package databases

// go generate: mockery --name ConsultationDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinicvault/clinicvault-api/models"
)

const consultationName = "consultations"

// ConsultationDatabase contains the methods to use with the consultation database
type ConsultationDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Consultation, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Consultation, error)
	InsertOne(ctx context.Context, details models.ConsultationDetails) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*models.Consultation, error)
	Status(ctx context.Context, consultationID string) (models.ConsultationStatus, error)
}

type consultationDatabase struct {
	db DatabaseHelper
}

// NewConsultationDatabase initializes a new instance of consultation database with the provided db connection
func NewConsultationDatabase(db DatabaseHelper) ConsultationDatabase {
	return &consultationDatabase{
		db: db,
	}
}

func (c *consultationDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Consultation, error) {
	consultation := &models.Consultation{}
	err := c.db.Collection(consultationName).FindOne(ctx, filter, opts...).Decode(&consultation)
	if err != nil {
		return nil, err
	}
	return consultation, nil
}

func (c *consultationDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Consultation, error) {
	var consultations []models.Consultation
	cr, err := c.db.Collection(consultationName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	err = cr.Decode(&consultations)
	if err != nil {
		return nil, err
	}
	return consultations, nil
}

func (c *consultationDatabase) InsertOne(ctx context.Context, details models.ConsultationDetails) (InsertOneResultHelper, error) {
	type consultation struct {
		Consultation models.ConsultationDetails `bson:"consultation"`
	}
	doc := consultation{Consultation: details}
	res, err := c.db.Collection(consultationName).InsertOne(ctx, doc)
	return res, err
}

func (c *consultationDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*models.Consultation, error) {
	_, err := c.db.Collection(consultationName).UpdateOne(ctx, filter, update, opts...)
	if err != nil {
		return nil, err
	}
	consultation := &models.Consultation{}
	err = c.db.Collection(consultationName).FindOne(ctx, filter).Decode(&consultation)
	if err != nil {
		return nil, err
	}
	return consultation, nil
}

// Status looks up just the lifecycle status for a consultation id. The
// session registry uses this to gate joins without loading PHI fields.
func (c *consultationDatabase) Status(ctx context.Context, consultationID string) (models.ConsultationStatus, error) {
	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		return "", err
	}
	consultation, err := c.FindOne(ctx, bson.M{"_id": cID})
	if err != nil {
		return "", err
	}
	return consultation.Details.Status, nil
}
