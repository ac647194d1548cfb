package databases_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/databases/mocks"
	"github.com/clinicvault/clinicvault-api/models"
)

func TestNewConsultationDatabase(t *testing.T) {
	os.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	os.Setenv("DB_NAME", "test")
	conf := config.New()

	dbClient, err := databases.NewClient(conf)
	assert.NoError(t, err)

	db := databases.NewDatabase(conf, dbClient)

	consultationDB := databases.NewConsultationDatabase(db)

	assert.NotEmpty(t, consultationDB)
}

func TestConsultationDatabase_FindOne(t *testing.T) {

	// define variables for interfaces
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperErr databases.SingleResultHelper
	var srHelperCorrect databases.SingleResultHelper

	// set interfaces implementation to mocked structures
	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperErr = &mocks.SingleResultHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperErr.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(errors.New("mocked-error"))

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Consultation)
		(*arg).Details.Status = models.StatusActive
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"error": true}).
		Return(srHelperErr)

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"error": false}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "consultations").Return(collectionHelper)

	consultationDba := databases.NewConsultationDatabase(dbHelper)

	consultation, err := consultationDba.FindOne(context.Background(), bson.M{"error": true})

	assert.Empty(t, consultation)
	assert.EqualError(t, err, "mocked-error")

	consultation, err = consultationDba.FindOne(context.Background(), bson.M{"error": false})

	assert.Equal(t, models.StatusActive, consultation.Details.Status)
	assert.NoError(t, err)
}

func TestConsultationDatabase_Find(t *testing.T) {

	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var crHelperCorrect databases.CursorHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	crHelperCorrect = &mocks.CursorHelper{}

	crHelperCorrect.(*mocks.CursorHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*[]models.Consultation)
		(*arg) = []models.Consultation{{Details: models.ConsultationDetails{PatientID: "mocked-patient"}}}
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("Find", context.Background(), bson.M{"error": true}).
		Return(nil, errors.New("mocked-error"))

	collectionHelper.(*mocks.CollectionHelper).
		On("Find", context.Background(), bson.M{"error": false}).
		Return(crHelperCorrect, nil)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "consultations").Return(collectionHelper)

	consultationDba := databases.NewConsultationDatabase(dbHelper)

	consultations, err := consultationDba.Find(context.Background(), bson.M{"error": true})

	assert.Empty(t, consultations)
	assert.EqualError(t, err, "mocked-error")

	consultations, err = consultationDba.Find(context.Background(), bson.M{"error": false})

	assert.Equal(t, "mocked-patient", consultations[0].Details.PatientID)
	assert.NoError(t, err)
}

func TestConsultationDatabase_InsertOne(t *testing.T) {

	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var iorHelper databases.InsertOneResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	iorHelper = &mocks.InsertOneResultHelper{}

	insertedID := primitive.NewObjectID()
	iorHelper.(*mocks.InsertOneResultHelper).
		On("Decode").
		Return(insertedID)

	collectionHelper.(*mocks.CollectionHelper).
		On("InsertOne", context.Background(), mock.Anything).
		Return(iorHelper, nil)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "consultations").Return(collectionHelper)

	consultationDba := databases.NewConsultationDatabase(dbHelper)

	res, err := consultationDba.InsertOne(context.Background(), models.ConsultationDetails{
		PatientID: "mocked-patient",
		DoctorID:  "mocked-doctor",
		Status:    models.StatusPendingPayment,
	})

	assert.NoError(t, err)
	assert.Equal(t, insertedID, res.Decode())
}

func TestConsultationDatabase_UpdateOne(t *testing.T) {

	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperCorrect databases.SingleResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Consultation)
		(*arg).Details.Status = models.StatusCompleted
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("UpdateOne", context.Background(), bson.M{"error": false}, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)

	collectionHelper.(*mocks.CollectionHelper).
		On("UpdateOne", context.Background(), bson.M{"error": true}, mock.Anything).
		Return(nil, errors.New("mocked-error"))

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"error": false}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "consultations").Return(collectionHelper)

	consultationDba := databases.NewConsultationDatabase(dbHelper)

	consultation, err := consultationDba.UpdateOne(context.Background(), bson.M{"error": true},
		bson.M{"$set": bson.M{"consultation.status": models.StatusCompleted}})

	assert.Empty(t, consultation)
	assert.EqualError(t, err, "mocked-error")

	consultation, err = consultationDba.UpdateOne(context.Background(), bson.M{"error": false},
		bson.M{"$set": bson.M{"consultation.status": models.StatusCompleted}})

	assert.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, consultation.Details.Status)
}

func TestConsultationDatabase_Status(t *testing.T) {

	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperCorrect databases.SingleResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Consultation)
		(*arg).Details.Status = models.StatusActive
	})

	cID := primitive.NewObjectID()
	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": cID}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "consultations").Return(collectionHelper)

	consultationDba := databases.NewConsultationDatabase(dbHelper)

	status, err := consultationDba.Status(context.Background(), cID.Hex())
	assert.NoError(t, err)
	assert.Equal(t, models.StatusActive, status)

	// malformed ids never reach the collection
	_, err = consultationDba.Status(context.Background(), "not-a-hex-id")
	assert.Error(t, err)
}
