package metadata

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Entities []yamlEntity `yaml:"entities"`
}

type yamlEntity struct {
	Name      string         `yaml:"name"`
	Table     string         `yaml:"table"`
	Columns   []yamlColumn   `yaml:"columns"`
	Relations []yamlRelation `yaml:"relations"`
}

type yamlColumn struct {
	Name       string `yaml:"name"`
	Field      string `yaml:"field"`
	Nullable   bool   `yaml:"nullable"`
	Unique     bool   `yaml:"unique"`
	Primary    bool   `yaml:"primary"`
	Generation string `yaml:"generation"`
	Version    bool   `yaml:"version"`
	CreateDate bool   `yaml:"create_date"`
	UpdateDate bool   `yaml:"update_date"`
	DeleteDate bool   `yaml:"delete_date"`
}

type yamlRelation struct {
	Name        string           `yaml:"name"`
	Kind        string           `yaml:"kind"`
	Target      string           `yaml:"target"`
	Owner       bool             `yaml:"owner"`
	Inverse     string           `yaml:"inverse"`
	Cascade     []string         `yaml:"cascade"`
	Nullable    bool             `yaml:"nullable"`
	Orphan      string           `yaml:"orphan"`
	JoinColumns []yamlJoinColumn `yaml:"join_columns"`
	JoinTable   *yamlJoinTable   `yaml:"join_table"`
}

type yamlJoinColumn struct {
	Name       string `yaml:"name"`
	Referenced string `yaml:"referenced"`
}

type yamlJoinTable struct {
	Name               string           `yaml:"name"`
	JoinColumns        []yamlJoinColumn `yaml:"join_columns"`
	InverseJoinColumns []yamlJoinColumn `yaml:"inverse_join_columns"`
}

// LoadYAML reads entity declarations from a YAML file. See ParseYAML.
func LoadYAML(filename string) ([]*EntityMetadata, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("metadata: reading schema file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses entity declarations. The returned metadata describes
// Record entities: columns and relations are read and written through
// RecordField and RecordRelation accessors.
//
//	entities:
//	  - name: User
//	    columns:
//	      - {name: id, primary: true, generation: increment}
//	      - {name: name}
//	    relations:
//	      - {name: posts, kind: one-to-many, target: Post, inverse: author, cascade: [insert, update]}
func ParseYAML(data []byte) ([]*EntityMetadata, error) {
	var yf yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yf); err != nil {
		return nil, fmt.Errorf("metadata: unmarshalling YAML: %w", err)
	}
	ms := make([]*EntityMetadata, 0, len(yf.Entities))
	for _, ye := range yf.Entities {
		m, err := ye.metadata()
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func (ye yamlEntity) metadata() (*EntityMetadata, error) {
	m := &EntityMetadata{Name: ye.Name, Table: ye.Table}
	for _, yc := range ye.Columns {
		gen, ok := ParseGeneration(yc.Generation)
		if !ok {
			return nil, fmt.Errorf("metadata: %s.%s: unknown generation %q", ye.Name, yc.Name, yc.Generation)
		}
		field := yc.Field
		if field == "" {
			field = yc.Name
		}
		m.Columns = append(m.Columns, &Column{
			Name:       yc.Name,
			Field:      field,
			Nullable:   yc.Nullable,
			Unique:     yc.Unique,
			Primary:    yc.Primary,
			Generation: gen,
			Version:    yc.Version,
			CreateDate: yc.CreateDate,
			UpdateDate: yc.UpdateDate,
			DeleteDate: yc.DeleteDate,
			Accessor:   RecordField(field),
		})
	}
	for _, yr := range ye.Relations {
		kind, ok := ParseRelationKind(yr.Kind)
		if !ok {
			return nil, fmt.Errorf("metadata: %s.%s: unknown relation kind %q", ye.Name, yr.Name, yr.Kind)
		}
		cascade, ok := ParseCascade(yr.Cascade...)
		if !ok {
			return nil, fmt.Errorf("metadata: %s.%s: unknown cascade %v", ye.Name, yr.Name, yr.Cascade)
		}
		orphan, ok := ParseOrphanAction(yr.Orphan)
		if !ok {
			return nil, fmt.Errorf("metadata: %s.%s: unknown orphan action %q", ye.Name, yr.Name, yr.Orphan)
		}
		rel := &Relation{
			Name:        yr.Name,
			Kind:        kind,
			Target:      yr.Target,
			Owner:       yr.Owner,
			InverseSide: yr.Inverse,
			Cascade:     cascade,
			Nullable:    yr.Nullable,
			Orphan:      orphan,
			JoinColumns: joinColumns(yr.JoinColumns),
			Accessor:    RecordRelation(yr.Name),
		}
		if jt := yr.JoinTable; jt != nil {
			rel.JoinTable = &JoinTable{
				Name:               jt.Name,
				JoinColumns:        joinColumns(jt.JoinColumns),
				InverseJoinColumns: joinColumns(jt.InverseJoinColumns),
			}
		}
		m.Relations = append(m.Relations, rel)
	}
	return m, nil
}

func joinColumns(ys []yamlJoinColumn) []JoinColumn {
	if len(ys) == 0 {
		return nil
	}
	jcs := make([]JoinColumn, len(ys))
	for i, y := range ys {
		jcs[i] = JoinColumn(y)
	}
	return jcs
}

// ParseGeneration parses a generation strategy name. The empty string
// is GenerationNone.
func ParseGeneration(s string) (Generation, bool) {
	switch strings.ToLower(s) {
	case "", "none":
		return GenerationNone, true
	case "increment":
		return Increment, true
	case "uuid":
		return UUID, true
	case "rowid":
		return RowID, true
	}
	return 0, false
}

// ParseOrphanAction parses an orphan action name. The empty string is
// OrphanNullify.
func ParseOrphanAction(s string) (OrphanAction, bool) {
	switch strings.ToLower(s) {
	case "", "nullify":
		return OrphanNullify, true
	case "delete":
		return OrphanDelete, true
	case "disable":
		return OrphanDisable, true
	}
	return 0, false
}
