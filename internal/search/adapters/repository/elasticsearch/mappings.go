package elasticsearch

import "github.com/taskflow-hq/taskflow/internal/search/domain/model"

type object = map[string]interface{}

func text(withKeyword bool) object {
	field := object{"type": "text", "analyzer": "standard"}
	if withKeyword {
		field["fields"] = object{"keyword": object{"type": "keyword", "ignore_above": 256}}
	}
	return field
}

var (
	keyword     = object{"type": "keyword"}
	lowerKey    = object{"type": "keyword", "normalizer": "lowercase_keyword"}
	long        = object{"type": "long"}
	integer     = object{"type": "integer"}
	boolean     = object{"type": "boolean"}
	date        = object{"type": "date"}
	scaledFloat = object{"type": "float"}
)

// Mapping returns the index body (settings and mappings) of an entity type.
// Authorization fields are numeric so term filters on them are exact.
func Mapping(entityType model.EntityType) object {
	var props object
	switch entityType {
	case model.EntityTask:
		props = object{
			"id":               keyword,
			"title":            text(true),
			"description":      text(false),
			"status":           keyword,
			"priority":         keyword,
			"creatorId":        long,
			"creatorName":      text(true),
			"assigneeId":       long,
			"assigneeName":     text(true),
			"visibleToUserIds": long,
			"projectId":        long,
			"projectName":      text(true),
			"tags":             text(true),
			"dueDate":          date,
			"completed":        boolean,
			"pinned":           boolean,
			"likeCount":        integer,
			"commentCount":     integer,
			"engagementScore":  integer,
			"createdAt":        date,
			"updatedAt":        date,
			"schemaVersion":    integer,
			"score":            scaledFloat,
		}
	case model.EntityProject:
		props = object{
			"id":                 keyword,
			"name":               text(true),
			"description":        text(false),
			"status":             keyword,
			"privacy":            keyword,
			"ownerId":            long,
			"ownerName":          text(true),
			"memberIds":          long,
			"memberNames":        text(false),
			"tags":               text(true),
			"startDate":          date,
			"endDate":            date,
			"taskCount":          integer,
			"completedTaskCount": integer,
			"createdAt":          date,
			"schemaVersion":      integer,
			"score":              scaledFloat,
		}
	case model.EntityUser:
		props = object{
			"id":                keyword,
			"email":             lowerKey,
			"username":          text(true),
			"firstName":         text(true),
			"lastName":          text(true),
			"fullName":          text(true),
			"department":        text(true),
			"skills":            text(true),
			"location":          text(true),
			"searchable":        boolean,
			"profileVisibility": keyword,
			"isDeactivated":     boolean,
			"followerCount":     integer,
			"followingCount":    integer,
			"postCount":         integer,
			"createdAt":         date,
			"schemaVersion":     integer,
			"score":             scaledFloat,
		}
	case model.EntityTeam:
		props = object{
			"id":            keyword,
			"name":          text(true),
			"description":   text(false),
			"leaderId":      long,
			"leaderName":    text(true),
			"memberIds":     long,
			"memberNames":   text(false),
			"privacy":       keyword,
			"memberCount":   integer,
			"projectCount":  integer,
			"createdAt":     date,
			"schemaVersion": integer,
			"score":         scaledFloat,
		}
	}

	return object{
		"settings": object{
			"analysis": object{
				"normalizer": object{
					"lowercase_keyword": object{"type": "custom", "filter": []string{"lowercase"}},
				},
			},
		},
		"mappings": object{
			"dynamic":    "false",
			"_meta":      object{"schemaVersion": model.DocumentSchemaVersion},
			"properties": props,
		},
	}
}
