package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
)

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	Fullname     string             `bson:"fullname"`
	PasswordHash string             `bson:"password,omitempty"`
	Avatar       string             `bson:"avatar"`
	CoverImage   string             `bson:"coverImage"`
	RefreshToken string             `bson:"refreshToken,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d userDocument) toModel() models.User {
	return models.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		Fullname:     d.Fullname,
		PasswordHash: d.PasswordHash,
		Avatar:       d.Avatar,
		CoverImage:   d.CoverImage,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Fields never loaded when credentials are not requested
var withoutCredentials = bson.D{{Key: "password", Value: 0}, {Key: "refreshToken", Value: 0}}

type UserRepo struct {
	coll *mongodriver.Collection
}

// MongoDB DateTime keeps milliseconds only
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "repository/mongo/CreateUser"

	ts := now()
	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Username:     user.Username,
		Email:        user.Email,
		Fullname:     user.Fullname,
		PasswordHash: user.PasswordHash,
		Avatar:       user.Avatar,
		CoverImage:   user.CoverImage,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	_, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return models.User{}, apperrors.ErrUserAlreadyExists
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

func (r *UserRepo) GetUserByID(ctx context.Context, userID string, opts ...repository.GetUserOption) (models.User, error) {
	const op = "repository/mongo/GetUserByID"

	o := repository.NewGetUserOptions(opts...)

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	findOpts := options.FindOne()
	if o.WithoutCredentials {
		findOpts.SetProjection(withoutCredentials)
	}

	return r.findOne(ctx, op, bson.D{{Key: "_id", Value: oid}}, findOpts)
}

func (r *UserRepo) FindUserByLogin(ctx context.Context, username string, email string) (models.User, error) {
	const op = "repository/mongo/FindUserByLogin"

	var or bson.A
	if username != "" {
		or = append(or, bson.D{{Key: "username", Value: username}})
	}
	if email != "" {
		or = append(or, bson.D{{Key: "email", Value: email}})
	}
	if len(or) == 0 {
		return models.User{}, apperrors.ErrUserNotFound
	}

	return r.findOne(ctx, op, bson.D{{Key: "$or", Value: or}}, options.FindOne())
}

func (r *UserRepo) SetRefreshToken(ctx context.Context, userID string, token string) error {
	const op = "repository/mongo/SetRefreshToken"

	update := bson.D{{Key: "$set", Value: bson.D{{Key: "refreshToken", Value: token}}}}
	if token == "" {
		update = bson.D{{Key: "$unset", Value: bson.D{{Key: "refreshToken", Value: ""}}}}
	}

	return r.updateOne(ctx, op, userID, update)
}

func (r *UserRepo) RotateRefreshToken(ctx context.Context, userID string, old string, token string) error {
	const op = "repository/mongo/RotateRefreshToken"

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperrors.ErrUserNotFound
	}
	if old == "" {
		return apperrors.ErrRefreshTokenMismatch
	}

	filter := bson.D{{Key: "_id", Value: oid}, {Key: "refreshToken", Value: old}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "refreshToken", Value: token}}}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: either user is gone or token is not the live one
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}}, options.Count().SetLimit(1))
	switch {
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	case n == 0:
		return apperrors.ErrUserNotFound
	default:
		return apperrors.ErrRefreshTokenMismatch
	}
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	const op = "repository/mongo/UpdatePassword"

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "password", Value: passwordHash},
		{Key: "updatedAt", Value: now()},
	}}}

	return r.updateOne(ctx, op, userID, update)
}

func (r *UserRepo) UpdateAccount(ctx context.Context, userID string, fullname string, email string) (models.User, error) {
	const op = "repository/mongo/UpdateAccount"

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "fullname", Value: fullname},
		{Key: "email", Value: email},
		{Key: "updatedAt", Value: now()},
	}}}

	return r.findOneAndUpdate(ctx, op, userID, update)
}

func (r *UserRepo) UpdateAvatar(ctx context.Context, userID string, avatarURL string) (models.User, error) {
	const op = "repository/mongo/UpdateAvatar"

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "avatar", Value: avatarURL},
		{Key: "updatedAt", Value: now()},
	}}}

	return r.findOneAndUpdate(ctx, op, userID, update)
}

func (r *UserRepo) findOne(ctx context.Context, op string, filter bson.D, opts *options.FindOneOptions) (models.User, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, filter, opts).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel(), nil
	case errors.Is(err, mongodriver.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	default:
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
}

func (r *UserRepo) updateOne(ctx context.Context, op string, userID string, update bson.D) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperrors.ErrUserNotFound
	}

	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// Update user and return the document after update without credentials
func (r *UserRepo) findOneAndUpdate(ctx context.Context, op string, userID string, update bson.D) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutCredentials)

	var doc userDocument
	err = r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel(), nil
	case errors.Is(err, mongodriver.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	case mongodriver.IsDuplicateKeyError(err):
		return models.User{}, apperrors.ErrUserAlreadyExists
	default:
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
}
