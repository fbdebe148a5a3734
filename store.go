package main

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("duplicate key")
)

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate) || mongo.IsDuplicateKeyError(err)
}

// EventFilter mirrors the query surface of GET /api/events and its
// authenticated variants. Creator/NotCreator/Attendee are references to
// allow "unset"; they are never combined in conflicting ways by callers.
type EventFilter struct {
	Category   string
	Location   string     // case-insensitive substring
	Search     string     // case-insensitive substring over title OR description
	Day        *time.Time // match [Day, Day+24h); overrides From/Until
	From       *time.Time // date >= From
	Until      *time.Time // date < Until
	Creator    *primitive.ObjectID
	NotCreator *primitive.ObjectID
	Attendee   *primitive.ObjectID
	SortDesc   bool
	Limit      int64 // 0 means no limit
}

// Datastore is the persistence seam for handlers. The production
// implementation is MongoStore; tests swap in an in-memory fake.
type Datastore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*User, error)
	UpdateUserProfile(ctx context.Context, id primitive.ObjectID, name, email string) (*User, error)
	UpdateUserPassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error
	UserNames(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error)

	CreateEvent(ctx context.Context, e *Event) error
	FindEventByID(ctx context.Context, id primitive.ObjectID) (*Event, error)
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)
	UpdateEvent(ctx context.Context, id primitive.ObjectID, changes Event) (*Event, error)
	DeleteEvent(ctx context.Context, id primitive.ObjectID) error

	AddAttendee(ctx context.Context, eventID, userID primitive.ObjectID) error
	RemoveAttendee(ctx context.Context, eventID, userID primitive.ObjectID) error
	AddCreatedEvent(ctx context.Context, userID, eventID primitive.ObjectID) error
	AddJoinedEvent(ctx context.Context, userID, eventID primitive.ObjectID) error
	RemoveJoinedEvent(ctx context.Context, userID, eventID primitive.ObjectID) error
	RemoveEventRefs(ctx context.Context, eventID primitive.ObjectID) error
}

// MongoStore persists users and events in MongoDB.
type MongoStore struct {
	users  *mongo.Collection
	events *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		users:  db.Collection("users"),
		events: db.Collection("events"),
	}
}

func (s *MongoStore) CreateUser(ctx context.Context, u *User) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	res, err := s.users.InsertOne(ctx, u)
	if err != nil {
		return err
	}
	u.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	var u User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) UpdateUserProfile(ctx context.Context, id primitive.ObjectID, name, email string) (*User, error) {
	update := bson.M{"$set": bson.M{"name": name, "email": email, "updatedAt": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u User
	err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) UpdateUserPassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	update := bson.M{"$set": bson.M{"password": passwordHash, "updatedAt": time.Now()}}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UserNames resolves a batch of user ids to display names in one query.
func (s *MongoStore) UserNames(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	names := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	opts := options.Find().SetProjection(bson.M{"name": 1})
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc struct {
			ID   primitive.ObjectID `bson:"_id"`
			Name string             `bson:"name"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		names[doc.ID] = doc.Name
	}
	return names, cur.Err()
}

func (s *MongoStore) CreateEvent(ctx context.Context, e *Event) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	res, err := s.events.InsertOne(ctx, e)
	if err != nil {
		return err
	}
	e.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *MongoStore) FindEventByID(ctx context.Context, id primitive.ObjectID) (*Event, error) {
	var e Event
	err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *MongoStore) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	sortDir := 1
	if f.SortDesc {
		sortDir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: sortDir}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cur, err := s.events.Find(ctx, buildEventQuery(f), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	events := []Event{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// buildEventQuery translates an EventFilter into a Mongo filter document.
// Substring filters quote the user input so it is never treated as a pattern.
func buildEventQuery(f EventFilter) bson.M {
	q := bson.M{}

	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.Location != "" {
		q["location"] = bson.M{"$regex": regexp.QuoteMeta(f.Location), "$options": "i"}
	}
	if f.Search != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(f.Search), "$options": "i"}
		q["$or"] = bson.A{bson.M{"title": re}, bson.M{"description": re}}
	}

	date := bson.M{}
	if f.Day != nil {
		date["$gte"] = *f.Day
		date["$lt"] = f.Day.Add(24 * time.Hour)
	} else {
		if f.From != nil {
			date["$gte"] = *f.From
		}
		if f.Until != nil {
			date["$lt"] = *f.Until
		}
	}
	if len(date) > 0 {
		q["date"] = date
	}

	if f.Creator != nil {
		q["creator"] = *f.Creator
	}
	if f.NotCreator != nil {
		q["creator"] = bson.M{"$ne": *f.NotCreator}
	}
	if f.Attendee != nil {
		q["attendees"] = *f.Attendee
	}
	return q
}

// UpdateEvent overwrites all mutable fields in one update. Creator and
// attendees are not touched here.
func (s *MongoStore) UpdateEvent(ctx context.Context, id primitive.ObjectID, changes Event) (*Event, error) {
	update := bson.M{"$set": bson.M{
		"title":       changes.Title,
		"description": changes.Description,
		"date":        changes.Date,
		"location":    changes.Location,
		"category":    changes.Category,
		"image":       changes.Image,
		"updatedAt":   time.Now(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var e Event
	err := s.events.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *MongoStore) DeleteEvent(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.events.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AddAttendee(ctx context.Context, eventID, userID primitive.ObjectID) error {
	update := bson.M{
		"$push": bson.M{"attendees": userID},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	res, err := s.events.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RemoveAttendee(ctx context.Context, eventID, userID primitive.ObjectID) error {
	update := bson.M{
		"$pull": bson.M{"attendees": userID},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	res, err := s.events.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCreatedEvent records a newly created event on its creator: the event id
// goes onto both the created and joined lists.
func (s *MongoStore) AddCreatedEvent(ctx context.Context, userID, eventID primitive.ObjectID) error {
	update := bson.M{"$push": bson.M{"createdEvents": eventID, "joinedEvents": eventID}}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	return err
}

func (s *MongoStore) AddJoinedEvent(ctx context.Context, userID, eventID primitive.ObjectID) error {
	update := bson.M{"$push": bson.M{"joinedEvents": eventID}}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	return err
}

func (s *MongoStore) RemoveJoinedEvent(ctx context.Context, userID, eventID primitive.ObjectID) error {
	update := bson.M{"$pull": bson.M{"joinedEvents": eventID}}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	return err
}

// RemoveEventRefs scrubs a deleted event's id from every user's created and
// joined lists.
func (s *MongoStore) RemoveEventRefs(ctx context.Context, eventID primitive.ObjectID) error {
	filter := bson.M{"$or": bson.A{
		bson.M{"createdEvents": eventID},
		bson.M{"joinedEvents": eventID},
	}}
	update := bson.M{"$pull": bson.M{"createdEvents": eventID, "joinedEvents": eventID}}
	_, err := s.users.UpdateMany(ctx, filter, update)
	return err
}
