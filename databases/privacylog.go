package databases

// go generate: mockery --name PrivacyLogDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinicvault/clinicvault-api/models"
)

const privacyLogName = "privacyLogs"

// PrivacyLogDatabase contains the methods to use with the privacy log
// database. The interface deliberately exposes no update or delete methods:
// the audit trail is append-only.
type PrivacyLogDatabase interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.PrivacyLog, error)
	InsertOne(ctx context.Context, details models.PrivacyLogDetails) (InsertOneResultHelper, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type privacyLogDatabase struct {
	db DatabaseHelper
}

// NewPrivacyLogDatabase initializes a new instance of privacy log database with the provided db connection
func NewPrivacyLogDatabase(db DatabaseHelper) PrivacyLogDatabase {
	return &privacyLogDatabase{
		db: db,
	}
}

func (p *privacyLogDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.PrivacyLog, error) {
	var logs []models.PrivacyLog
	cr, err := p.db.Collection(privacyLogName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	err = cr.Decode(&logs)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (p *privacyLogDatabase) InsertOne(ctx context.Context, details models.PrivacyLogDetails) (InsertOneResultHelper, error) {
	type privacyLog struct {
		PrivacyLog models.PrivacyLogDetails `bson:"privacyLog"`
	}
	doc := privacyLog{PrivacyLog: details}
	res, err := p.db.Collection(privacyLogName).InsertOne(ctx, doc)
	return res, err
}

func (p *privacyLogDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return p.db.Collection(privacyLogName).CountDocuments(ctx, filter, opts...)
}
